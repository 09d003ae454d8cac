package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const maxRequestBody = 64 << 10

const (
	msgInvalidJSON    = "Invalid request format. Expected JSON."
	msgMissingMessage = "Please provide a message."
	msgUnavailable    = "The workflow service is not available. Please check if the workflow is activated."
	msgFailed         = "The workflow service encountered an error. Please try again later."
	msgStatus         = "Sorry, I couldn't process your request right now."
	msgUnreachable    = "Sorry, I couldn't connect to the workflow service."
	msgMalformed      = "The workflow service returned an invalid response. Please try again."
	msgInternal       = "Sorry, something went wrong. Please try again later."
)

// Replier produces a reply for one chat message.
type Replier interface {
	Reply(ctx context.Context, msg string) (string, error)
}

type response struct {
	Reply string `json:"reply"`
}

// Handler serves POST /chat. Every outcome is a {"reply": ...} body so chat
// widgets can render errors inline.
func Handler(replier Replier, logger logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err != nil {
			writeReply(w, http.StatusBadRequest, msgInvalidJSON)
			return
		}

		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			logger.WithError(err).Debug("chat request is not JSON")
			writeReply(w, http.StatusBadRequest, msgInvalidJSON)
			return
		}

		body, _ := decoded.(map[string]any)
		msg, ok := ExtractMessage(body)
		if !ok {
			logger.Debug("chat request carries no message")
			writeReply(w, http.StatusBadRequest, msgMissingMessage)
			return
		}

		reply, err := replier.Reply(r.Context(), msg)
		if err != nil {
			logger.WithError(err).Error("chat workflow call failed")
			writeReply(w, http.StatusInternalServerError, upstreamMessage(err))
			return
		}
		writeReply(w, http.StatusOK, reply)
	}
}

func upstreamMessage(err error) string {
	switch errors.Cause(err) {
	case ErrUpstreamUnavailable:
		return msgUnavailable
	case ErrUpstreamFailed:
		return msgFailed
	case ErrUpstreamStatus:
		return msgStatus
	case ErrUpstreamUnreachable:
		return msgUnreachable
	case ErrUpstreamMalformed:
		return msgMalformed
	}
	return msgInternal
}

func writeReply(w http.ResponseWriter, status int, reply string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response{Reply: reply})
}
