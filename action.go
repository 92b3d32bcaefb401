package pinbox

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

const defaultCallbackMethod = http.MethodGet

type VideoSwitcher interface {
	Switch(file string) error
}

// Actions runs the side effects configured on an input for one edge. Every
// action is best effort: failures are logged and never retried.
type Actions struct {
	DefaultMethod string

	client *http.Client
	video  VideoSwitcher
	serial io.Writer
	logger *log.Logger
}

// NewActions builds the action dispatcher. video and serial may be nil, in
// which case the matching actions are logged and skipped.
func NewActions(client *http.Client, video VideoSwitcher, serial io.Writer) *Actions {
	if client == nil {
		client = &http.Client{}
	}
	return &Actions{
		DefaultMethod: defaultCallbackMethod,
		client:        client,
		video:         video,
		serial:        serial,
		logger:        log.WithPrefix("actions"),
	}
}

func callbackMethod(method string) (string, error) {
	switch strings.ToUpper(method) {
	case http.MethodGet:
		return http.MethodGet, nil
	case http.MethodPut:
		return http.MethodPut, nil
	}
	return "", errors.Wrapf(ErrInvalidMethod, "%q", method)
}

// Fire runs, in order, the callback, the video switch and the serial write
// configured for state.
func (a *Actions) Fire(rec PinRecord, state State) {
	url, video, serial := rec.Actions(state)

	if len(url) > 0 {
		err := a.callback(rec, url, state)
		if err != nil {
			a.logger.Error("callback failed", "pin", rec.Label(), "url", url, "err", err)
		}
	}

	if len(video) > 0 {
		if a.video == nil {
			a.logger.Warn("video player not configured", "pin", rec.Label(), "video", video)
		} else if err := a.video.Switch(video); err != nil {
			a.logger.Error("video switch failed", "pin", rec.Label(), "video", video, "err", err)
		}
	}

	if len(serial) > 0 {
		if a.serial == nil {
			a.logger.Warn("serial port not configured", "pin", rec.Label(), "payload", serial)
		} else if _, err := a.serial.Write([]byte(serial)); err != nil {
			a.logger.Error("serial write failed", "pin", rec.Label(), "payload", serial, "err", err)
		}
	}
}

func (a *Actions) callback(rec PinRecord, url string, state State) error {
	method := rec.CallbackMethod
	if len(method) == 0 {
		method = a.DefaultMethod
	}
	method, err := callbackMethod(method)
	if err != nil {
		return err
	}

	var body io.Reader
	if method == http.MethodPut {
		payload, err := json.Marshal(map[string]State{"state": state})
		if err != nil {
			return errors.Wrap(err, "failed to encode callback body")
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return errors.Wrap(err, "failed to prepare callback request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	a.logger.Debug("calling", "method", method, "url", url, "state", state)
	resp, err := a.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "callback request failed")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return errors.Errorf("callback responded with status %d", resp.StatusCode)
	}
	return nil
}
