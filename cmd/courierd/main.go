// Command courierd runs a small demo daemon exposing the courier delivery
// subsystem over HTTP, standing in for the storefront web layer. It wires
// an in-process memory transport so the full lifecycle (pairing, drops,
// queue draining) can be exercised without a real chat network.
//
// Environment:
//
//	COURIERD_ADDR        listen address (default :8080)
//	COURIERD_DATA_DIR    credential directory (default ./courier-data)
//	COURIERD_PASSPHRASE  credential encryption passphrase (default "courierd-dev")
//	COURIERD_ADMIN       admin alert recipient (optional)
package main

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/courier"
	"github.com/opd-ai/courier/transport"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	addr := envOr("COURIERD_ADDR", ":8080")

	options := courier.NewOptions()
	options.DataDir = envOr("COURIERD_DATA_DIR", "./courier-data")
	options.CredentialPassphrase = []byte(envOr("COURIERD_PASSPHRASE", "courierd-dev"))
	options.AdminTarget = os.Getenv("COURIERD_ADMIN")

	chat := transport.NewMemoryTransport()

	c, err := courier.New(chat, options)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create courier")
	}

	c.OnDeliveryOutcome(func(o courier.Outcome) {
		logrus.WithFields(logrus.Fields{
			"id":     o.MessageID,
			"target": o.Target,
			"status": o.Status.String(),
		}).Info("Delivery outcome")
	})

	if err := c.Start(); err != nil {
		logrus.WithError(err).Fatal("Failed to start courier")
	}
	defer c.Stop()

	r := newRouter(c, chat)

	logrus.WithField("addr", addr).Info("courierd listening")
	if err := http.ListenAndServe(addr, r); err != nil {
		logrus.WithError(err).Fatal("Server failed")
	}
}

func newRouter(c *courier.Courier, chat *transport.MemoryTransport) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/otp/request", func(w http.ResponseWriter, req *http.Request) {
		var in struct {
			PhoneNumber string `json:"phoneNumber"`
			DisplayName string `json:"displayName"`
		}
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil || in.PhoneNumber == "" {
			http.Error(w, "phoneNumber required", http.StatusBadRequest)
			return
		}

		code, outcome, err := c.RequestOTP(in.PhoneNumber, in.DisplayName)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		// The code is surfaced for logging/out-of-band fallback, never
		// silently swallowed.
		writeJSON(w, map[string]interface{}{
			"success": true,
			"code":    code,
			"outcome": outcome.Status.String(),
		})
	}).Methods("POST")

	r.HandleFunc("/otp/verify", func(w http.ResponseWriter, req *http.Request) {
		var in struct {
			PhoneNumber string `json:"phoneNumber"`
			Code        string `json:"code"`
		}
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil || in.PhoneNumber == "" {
			http.Error(w, "phoneNumber required", http.StatusBadRequest)
			return
		}

		result := c.VerifyOTP(in.PhoneNumber, in.Code)
		writeJSON(w, map[string]interface{}{
			"valid":  result.Valid,
			"reason": result.Status.String(),
		})
	}).Methods("POST")

	r.HandleFunc("/send/document", func(w http.ResponseWriter, req *http.Request) {
		var in struct {
			Target   string `json:"target"`
			Data     string `json:"data"` // base64
			Filename string `json:"filename"`
			Caption  string `json:"caption"`
		}
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil || in.Target == "" {
			http.Error(w, "target required", http.StatusBadRequest)
			return
		}

		data, err := base64.StdEncoding.DecodeString(in.Data)
		if err != nil {
			http.Error(w, "data must be base64", http.StatusBadRequest)
			return
		}

		outcome := c.SendDocument(in.Target, data, in.Filename, in.Caption)
		writeJSON(w, map[string]interface{}{
			"accepted":        outcome.Status != courier.StatusFailed,
			"deliveryOutcome": outcome.Status.String(),
			"messageId":       outcome.MessageID,
		})
	}).Methods("POST")

	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		status := c.Status()
		writeJSON(w, map[string]interface{}{
			"state":                status.State.String(),
			"requiresPairing":      status.RequiresPairing,
			"pairingCodeAvailable": status.PairingCode != "",
			"pairingCode":          status.PairingCode,
			"queuedMessages":       status.QueuedMessages,
		})
	}).Methods("GET")

	// Demo controls for the memory transport: simulate pairing completion
	// and session drops.
	r.HandleFunc("/demo/pair", func(w http.ResponseWriter, req *http.Request) {
		chat.CompletePairing()
		writeJSON(w, map[string]interface{}{"ok": true})
	}).Methods("POST")

	r.HandleFunc("/demo/drop", func(w http.ResponseWriter, req *http.Request) {
		reason := transport.ReasonNetworkError
		if req.URL.Query().Get("reason") == "logged_out" {
			reason = transport.ReasonLoggedOut
		}
		chat.Drop(reason)
		writeJSON(w, map[string]interface{}{"ok": true})
	}).Methods("POST")

	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("Failed to encode response")
	}
}
