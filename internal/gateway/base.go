package gateway

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gateway-service/internal/models"
)

// base holds the state and helpers shared by all adapters
type base struct {
	gatewayType models.GatewayType
	meta        models.Settings
	currency    string
	transport   Transport
	sink        LogSink
	logger      *logrus.Entry
	now         func() time.Time
	masker      *Masker
	encryptable []string
}

func newBase(gatewayType models.GatewayType, opts Options, encryptable []string, masked ...string) base {
	opts = opts.withDefaults()
	return base{
		gatewayType: gatewayType,
		meta:        models.Settings{},
		transport:   opts.Transport,
		sink:        opts.Sink,
		logger:      opts.Log.WithField("gateway", string(gatewayType)),
		now:         opts.Clock,
		masker:      NewMasker(append(append([]string{}, masked...), encryptable...)...),
		encryptable: encryptable,
	}
}

func (b *base) Type() models.GatewayType { return b.gatewayType }

func (b *base) SetCurrency(currency string) {
	b.currency = strings.ToUpper(currency)
}

func (b *base) SetMeta(settings models.Settings) {
	b.meta = settings.Clone()
}

func (b *base) EncryptableFields() []string {
	return append([]string{}, b.encryptable...)
}

// storedSecrets returns the encryptable settings, used to scrub log records
func (b *base) storedSecrets() map[string]string {
	out := make(map[string]string, len(b.encryptable))
	for _, key := range b.encryptable {
		if v := b.meta.Get(key); v != "" {
			out[key] = v
		}
	}
	return out
}

// logRequest records an outbound request
func (b *base) logRequest(ctx context.Context, endpoint string, data map[string]string) {
	b.sink.Log(ctx, &LogEntry{
		Gateway:   b.gatewayType,
		URL:       endpoint,
		Direction: models.LogDirectionInput,
		Payload:   b.masker.Record(data, b.storedSecrets()),
		Success:   true,
	})
}

// logResponse records a processor response, scrubbed of any secret sent
// in the request or present in the parsed response
func (b *base) logResponse(ctx context.Context, endpoint, raw string, success bool, known ...map[string]string) {
	b.sink.Log(ctx, &LogEntry{
		Gateway:   b.gatewayType,
		URL:       endpoint,
		Direction: models.LogDirectionOutput,
		Payload:   b.masker.RecordRaw(raw, append(known, b.storedSecrets())...),
		Success:   success,
	})
}

// logCallback records an inbound processor notification
func (b *base) logCallback(ctx context.Context, endpoint string, cb *Callback, success bool) {
	data := flattenValues(cb.Get)
	for k, v := range flattenValues(cb.Post) {
		data[k] = v
	}
	b.sink.Log(ctx, &LogEntry{
		Gateway:   b.gatewayType,
		URL:       endpoint,
		Direction: models.LogDirectionOutput,
		Payload:   b.masker.Record(data, b.storedSecrets()),
		Success:   success,
	})
}

// orderID builds the deterministic "{client_id}-{unix}" order id
func (b *base) orderID(clientID string) string {
	return clientID + "-" + strconv.FormatInt(b.now().Unix(), 10)
}

// transportFailure is the result of a request that never got a usable answer.
// The message is generic; the cause only goes to the operational log.
func (b *base) transportFailure(op string, err error) *models.TransactionResult {
	b.logger.WithError(err).WithField("operation", op).Error("gateway communication failed")
	return &models.TransactionResult{
		Status:  models.StatusError,
		Message: "The payment gateway could not be reached or returned an unreadable response.",
	}
}

// clientIDFromOrder returns the client id prefix of a "{client_id}-{unix}" order id
func clientIDFromOrder(orderID string) string {
	if i := strings.LastIndex(orderID, "-"); i > 0 {
		return orderID[:i]
	}
	return ""
}

func flattenValues(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// upperMD5 returns the upper-case hex MD5 of s, the signature form used by
// several processors
func upperMD5(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// signaturesMatch compares signatures in constant time, ignoring case
func signaturesMatch(expected, given string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.ToUpper(expected)), []byte(strings.ToUpper(given))) == 1
}
