package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"bilisub/internal/acquire"
	"bilisub/internal/platform/httpx"
	"bilisub/internal/services"
)

// maxJSONBody bounds API and subtitle bodies.
const maxJSONBody = 16 << 20

// envelope is the wrapper every web API response uses.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// APIError is a non-zero envelope code.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bilibili api code %d: %s", e.Code, e.Message)
}

// classifyCode maps envelope codes onto failure kinds.
func classifyCode(op string, code int, message string) error {
	apiErr := &APIError{Code: code, Message: message}
	switch code {
	case -404, 62002, 62004, 62012:
		return services.Classify(services.KindNotFound, op, apiErr)
	case -101, -403, 87007, 87008:
		return services.Classify(services.KindAuthRejected, op, apiErr)
	case -412, -509, -799:
		return services.RateLimited(op, 0, apiErr)
	case -400:
		return services.Classify(services.KindInvalidInput, op, apiErr)
	default:
		return services.Classify(services.KindTransientNetwork, op, apiErr)
	}
}

type viewData struct {
	BVID      string     `json:"bvid"`
	AID       int64      `json:"aid"`
	Title     string     `json:"title"`
	Duration  float64    `json:"duration"`
	CID       int64      `json:"cid"`
	Pages     []viewPage `json:"pages"`
	Dimension struct {
		Width  int `json:"width"`
		Height int `json:"height"`
		Rotate int `json:"rotate"`
	} `json:"dimension"`
}

type viewPage struct {
	CID      int64   `json:"cid"`
	Page     int     `json:"page"`
	Part     string  `json:"part"`
	Duration float64 `json:"duration"`
}

type playerData struct {
	NeedLoginSubtitle bool `json:"need_login_subtitle"`
	Subtitle          struct {
		Subtitles []subtitleEntry `json:"subtitles"`
	} `json:"subtitle"`
}

type subtitleEntry struct {
	ID          int64  `json:"id"`
	Lan         string `json:"lan"`
	LanDoc      string `json:"lan_doc"`
	SubtitleURL string `json:"subtitle_url"`
	AIType      int    `json:"ai_type"`
	AIStatus    int    `json:"ai_status"`
}

type subtitleBody struct {
	Body []struct {
		From    float64 `json:"from"`
		To      float64 `json:"to"`
		Content string  `json:"content"`
	} `json:"body"`
}

type playURLData struct {
	Dash *struct {
		Audio []dashStream `json:"audio"`
	} `json:"dash"`
	Durl []struct {
		URL string `json:"url"`
	} `json:"durl"`
}

type dashStream struct {
	BaseURL    string   `json:"baseUrl"`
	BaseURLAlt string   `json:"base_url"`
	BackupURL  []string `json:"backupUrl"`
	Bandwidth  int64    `json:"bandwidth"`
}

func (s dashStream) url() string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	if s.BaseURLAlt != "" {
		return s.BaseURLAlt
	}
	if len(s.BackupURL) > 0 {
		return s.BackupURL[0]
	}
	return ""
}

// get issues a GET with the credential's cookies and classifies transport
// and status failures. The caller owns the body on success.
func (c *Client) get(ctx context.Context, op, rawURL string, cred *acquire.Credential) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, services.Classify(services.KindInvalidInput, op, err)
	}
	if cookie := cred.Cookie(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, httpx.ClassifyError(ctx, op, err)
	}
	if err := httpx.Check(op, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// getAPI fetches an enveloped endpoint and decodes its data into out.
func (c *Client) getAPI(ctx context.Context, op, rawURL string, cred *acquire.Credential, out any) error {
	resp, err := c.get(ctx, op, rawURL, cred)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(&env); err != nil {
		return httpx.ClassifyError(ctx, op, fmt.Errorf("decode response: %w", err))
	}
	if env.Code != 0 {
		return classifyCode(op, env.Code, env.Message)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return services.Classify(services.KindInternal, op, fmt.Errorf("decode data: %w", err))
	}
	return nil
}
