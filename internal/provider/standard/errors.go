package standard

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"referral_dashboard/internal/provider"
)

type upstreamError struct {
	Error       string `json:"error"`
	ErrorCode   any    `json:"error_code"`
	Description string `json:"error_description"`
	Message     string `json:"message"`
}

func remoteError(op string, resp *resty.Response) *provider.RemoteError {
	body := string(resp.Body())
	re := &provider.RemoteError{Op: op, Status: resp.StatusCode(), Body: body}

	var ue upstreamError
	if err := json.Unmarshal(resp.Body(), &ue); err == nil {
		re.Code = ue.Error
		if re.Code == "" && ue.ErrorCode != nil {
			re.Code = fmt.Sprint(ue.ErrorCode)
		}
		re.Message = ue.Description
		if re.Message == "" {
			re.Message = ue.Message
		}
	}
	return re
}

// isTokenExpired prefers the structured error code. The message substring match is a
// compatibility shim for responses that only say so in prose; keep it.
func isTokenExpired(re *provider.RemoteError) bool {
	switch strings.ToLower(re.Code) {
	case "token_expired", "access_token_expired":
		return true
	}
	text := re.Message
	if text == "" {
		text = re.Body
	}
	return strings.Contains(strings.ToLower(text), "expired")
}
