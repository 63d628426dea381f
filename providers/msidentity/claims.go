package msidentity

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-driveconnect/core"
)

// decodeTokenClaims pulls tid and oid out of a Microsoft access token. The
// payload segment is base64url without padding; only decoding happens here,
// never signature verification.
func decodeTokenClaims(accessToken string) (core.TokenClaims, error) {
	segments := strings.Split(strings.TrimSpace(accessToken), ".")
	if len(segments) != 3 {
		return core.TokenClaims{}, fmt.Errorf("msidentity: access token is not a three-segment jwt")
	}

	payload, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return core.TokenClaims{}, fmt.Errorf("msidentity: decode jwt payload: %w", err)
	}

	var decoded struct {
		TenantID  string `json:"tid"`
		SubjectID string `json:"oid"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return core.TokenClaims{}, fmt.Errorf("msidentity: parse jwt payload: %w", err)
	}

	return core.TokenClaims{
		TenantID:  strings.TrimSpace(decoded.TenantID),
		SubjectID: strings.TrimSpace(decoded.SubjectID),
	}, nil
}
