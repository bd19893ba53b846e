package acquire

import (
	"os"
	"strings"
)

// Environment variables consulted by CredentialFromEnv.
const (
	EnvSESSDATA = "BILI_SESSDATA"
	EnvBiliJCT  = "BILI_JCT"
	EnvBuVID3   = "BILI_BUVID3"
)

// Credential is the optional cookie bundle needed for access-restricted
// videos. A nil *Credential is valid and means anonymous access.
type Credential struct {
	SESSDATA string `json:"sessdata"`
	BiliJCT  string `json:"bili_jct"`
	BuVID3   string `json:"buvid3"`
}

// CredentialFromEnv reads the cookie bundle from the environment. It returns
// nil when no value is set.
func CredentialFromEnv() *Credential {
	cred := &Credential{
		SESSDATA: strings.TrimSpace(os.Getenv(EnvSESSDATA)),
		BiliJCT:  strings.TrimSpace(os.Getenv(EnvBiliJCT)),
		BuVID3:   strings.TrimSpace(os.Getenv(EnvBuVID3)),
	}
	if cred.Empty() {
		return nil
	}
	return cred
}

// Empty reports whether no token is present. Safe on a nil receiver.
func (c *Credential) Empty() bool {
	return c == nil || (c.SESSDATA == "" && c.BiliJCT == "" && c.BuVID3 == "")
}

// Cookie renders the bundle as a Cookie header value. Empty for nil.
func (c *Credential) Cookie() string {
	if c.Empty() {
		return ""
	}
	parts := make([]string, 0, 3)
	if c.SESSDATA != "" {
		parts = append(parts, "SESSDATA="+c.SESSDATA)
	}
	if c.BiliJCT != "" {
		parts = append(parts, "bili_jct="+c.BiliJCT)
	}
	if c.BuVID3 != "" {
		parts = append(parts, "buvid3="+c.BuVID3)
	}
	return strings.Join(parts, "; ")
}

// String never reveals token values.
func (c *Credential) String() string {
	if c.Empty() {
		return "anonymous"
	}
	return "credential(redacted)"
}
