package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	phonex "github.com/relayne/crmagent/pkg/phone"
)

const maxWebhookBodyBytes = 1 << 20

func jsonEncode(w io.Writer, body any) error {
	return json.NewEncoder(w).Encode(body)
}

// webhookEnvelope is the subset of Meta's message payload the pipeline
// reads. Everything else (read receipts, status updates) decodes to empty
// slices and is acknowledged without action.
type webhookEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []struct {
					ID   string `json:"id"`
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// handleVerification answers Meta's subscription handshake.
func (s *Server) handleVerification(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode == "subscribe" && s.verifyToken != "" && token == s.verifyToken {
		log.Info().Msg("webhook verified")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}
	w.WriteHeader(http.StatusForbidden)
}

// handleWebhook is the inbound delivery pipeline: signature check, shape
// check, rate limit, dedup, background dispatch. Once the signature is
// verified the answer is always 200 — a non-success status would make the
// sender redeliver, and duplicates are already handled internally.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if s.appSecret != "" {
		if !verifySignature(s.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
			log.Warn().Msg("webhook delivery rejected: bad signature")
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		log.Warn().Err(err).Msg("webhook payload is not valid JSON, acknowledged anyway")
		w.WriteHeader(http.StatusOK)
		return
	}
	if envelope.Object != "whatsapp_business_account" {
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			for _, message := range value.Messages {
				if message.Type != "text" {
					continue
				}

				sender := message.From
				if len(value.Contacts) > 0 && value.Contacts[0].WaID != "" {
					sender = value.Contacts[0].WaID
				}
				if sender == "" {
					continue
				}

				if !s.limiter.Allow(sender) {
					log.Warn().Str("sender", phonex.Mask(sender)).Msg("sender throttled, delivery acknowledged and dropped")
					continue
				}
				if s.dedup.IsDuplicate(message.ID) {
					log.Debug().Str("message_id", message.ID).Msg("duplicate delivery acknowledged and skipped")
					continue
				}

				s.dispatch(sender, message.Text.Body)
			}
		}
	}

	w.WriteHeader(http.StatusOK)
}
