package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pitabwire/coreitems/internal/command"
	"github.com/pitabwire/coreitems/internal/definition"
	"github.com/pitabwire/coreitems/internal/interaction"
	"github.com/pitabwire/coreitems/internal/inventory"
	"github.com/pitabwire/coreitems/internal/observability"
	"github.com/pitabwire/coreitems/model"
)

const (
	maxBodyBytes = 1 << 20

	// IdempotencyKeyHeader carries the client supplied replay key.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader is set on responses served from the replay cache.
	IdempotentReplayHeader = "Idempotent-Replay"

	defaultIdempotencyTTL = 24 * time.Hour
)

type handlers struct {
	service     *interaction.Service
	registry    *definition.Registry
	tracker     *inventory.Tracker
	idempotency command.IdempotencyStore
	ttl         time.Duration
	pageSize    int
	logger      *zap.Logger
}

var validate = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// readBody reads and decodes a JSON request body into dst, then validates
// it. The raw bytes are returned for idempotency hashing.
func readBody(r *http.Request, dst any) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, model.NewBadRequestError("unreadable request body")
	}
	if len(raw) > maxBodyBytes {
		return nil, model.NewBadRequestError("request body too large")
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, model.NewBadRequestError("malformed JSON body")
	}
	if err := validateStruct(dst); err != nil {
		return nil, err
	}
	return raw, nil
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewBadRequestError(err.Error())
	}
	details := make([]model.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		details = append(details, model.FieldError{
			Field:   field,
			Code:    strings.ToUpper(fe.Tag()),
			Message: "failed " + fe.Tag(),
		})
	}
	return model.NewValidationError(details)
}

// idempotent runs fn once per Idempotency-Key. A retry with the same key and
// body replays the stored response; the same key with a different body is a
// conflict. Requests without a key, or without a store, always run fn.
func (h *handlers) idempotent(w http.ResponseWriter, r *http.Request, user string, body []byte, fn func(ctx context.Context) (any, error)) {
	ctx := r.Context()
	key := r.Header.Get(IdempotencyKeyHeader)
	if key == "" || h.idempotency == nil {
		result, err := fn(ctx)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
		return
	}

	logger := observability.LoggerFrom(ctx, h.logger)
	storeKey := command.FormatIdempotencyKey(user, key)
	sum := sha256.Sum256(body)
	hash := r.URL.Path + ":" + hex.EncodeToString(sum[:])

	// 1. Replay or reject a reused key.
	cached, found, err := h.idempotency.Check(ctx, storeKey, hash)
	if err != nil {
		var ee *model.ErrorEnvelope
		if !errors.As(err, &ee) {
			logger.Error("idempotency lookup failed", zap.Error(err))
		}
		WriteError(w, err)
		return
	}
	if found {
		w.Header().Set(IdempotentReplayHeader, "true")
		WriteRawJSON(w, http.StatusOK, cached)
		return
	}

	// 2. Run and remember the result.
	result, err := fn(ctx)
	if err != nil {
		WriteError(w, err)
		return
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		WriteError(w, err)
		return
	}
	ttl := h.ttl
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	if err := h.idempotency.Store(ctx, storeKey, hash, encoded, ttl); err != nil {
		logger.Warn("idempotency store failed", zap.Error(err), zap.String("key", storeKey))
	}
	WriteRawJSON(w, http.StatusOK, encoded)
}
