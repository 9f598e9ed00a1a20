package clubhouse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// TextbeltURL is the delivery endpoint; overridable for tests.
var TextbeltURL = "https://textbelt.com/text"

// TextbeltDispatcher delivers codes through textbelt.com. Delivery is best
// effort: callers log and move on, the user can always request a new code.
type TextbeltDispatcher struct {
	APIKey string
	Client *http.Client
	logger Logger
}

// NewTextbeltDispatcher creates a dispatcher with a bounded request timeout
// so a slow provider can never hold a request thread.
func NewTextbeltDispatcher(apiKey string) *TextbeltDispatcher {
	return &TextbeltDispatcher{
		APIKey: apiKey,
		Client: &http.Client{Timeout: 10 * time.Second},
		logger: defLogger{},
	}
}

func (d *TextbeltDispatcher) WithLogger(l Logger) *TextbeltDispatcher {
	if l != nil {
		d.logger = l
	}
	return d
}

func (d *TextbeltDispatcher) Send(ctx context.Context, phone, message string) error {
	// Textbelt wants the country code; canonical numbers are national digits.
	if len(phone) == 10 {
		phone = "1" + phone
	}

	form := url.Values{}
	form.Set("phone", phone)
	form.Set("message", message)
	form.Set("key", d.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, TextbeltURL, strings.NewReader(form.Encode()))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build SMS request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := d.Client.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "SMS delivery request failed")
	}
	defer res.Body.Close()

	var payload struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}

	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "unable to parse SMS provider response")
	}

	if !payload.Success {
		return goerrors.New("SMS provider rejected the message", goerrors.CategoryOperation).
			WithMetadata(map[string]any{
				"provider_error": payload.Error,
			})
	}

	return nil
}

// LogDispatcher prints codes instead of sending them. This is the dev-mode
// dispatcher: the code shows up in the process log so local testing never
// needs a real phone.
type LogDispatcher struct {
	logger Logger
}

func NewLogDispatcher(l Logger) *LogDispatcher {
	if l == nil {
		l = defLogger{}
	}
	return &LogDispatcher{logger: l}
}

func (d *LogDispatcher) Send(_ context.Context, phone, message string) error {
	d.logger.Info("SMS to %s: %s", FormatPhone(phone), message)
	return nil
}

var (
	_ Dispatcher = (*TextbeltDispatcher)(nil)
	_ Dispatcher = (*LogDispatcher)(nil)
)
