package definition

import "testing"

func TestTranslateColors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "Sword", "Sword"},
		{"legacy lower", "&cRed", "§cRed"},
		{"legacy upper is lowered", "&CRed &LBold", "§cRed §lBold"},
		{"reset and hex marker", "&r&x", "§r§x"},
		{"unknown code kept", "&zNope & done", "&zNope & done"},
		{"trailing ampersand", "Rock &", "Rock &"},
		{"hex", "&#FF00aaPink", "§x§F§F§0§0§a§aPink"},
		{"hex then legacy", "&#123456&lBold", "§x§1§2§3§4§5§6§lBold"},
		{"short hex is legacy only", "&#12345", "&#12345"},
		{"unicode around codes", "★&6Gold★", "★§6Gold★"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TranslateColors(tt.in); got != tt.want {
				t.Errorf("TranslateColors(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
