package notify

import (
	"encoding/json"
	"net/http"

	"github.com/dancelink/platform/internal/httputil"
	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/metrics"
)

const maxPayloadBytes = 64 << 10

// Handler is the notification function: it renders the decision email for
// a POSTed Payload and delivers it through a Mailer.
type Handler struct {
	mailer  Mailer
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewHandler creates the function handler. m may be nil.
func NewHandler(mailer Mailer, logger *logging.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = logging.NewDiscard("notify")
	}
	return &Handler{mailer: mailer, logger: logger, metrics: m}
}

func setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	httputil.WriteJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w.Header())

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	log := h.logger.WithContext(ctx)

	body, err := httputil.ReadAllStrict(r.Body, maxPayloadBytes)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := p.Validate(); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	email, err := Render(p)
	if err != nil {
		log.WithError(err).Error("Error rendering notification")
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp, err := h.mailer.SendEmail(ctx, email)
	if h.metrics != nil {
		h.metrics.RecordNotification(p.Status, err == nil)
	}
	if err != nil {
		log.WithError(err).WithField("status", p.Status).Error("Error sending notification")
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.WithField("status", p.Status).WithField("provider_response", string(resp)).Info("Notification email sent")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if len(resp) == 0 {
		resp = json.RawMessage("null")
	}
	_, _ = w.Write(resp)
}
