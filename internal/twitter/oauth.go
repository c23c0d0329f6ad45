package twitter

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// oauthSigner builds OAuth 1.0a HMAC-SHA1 authorization headers for
// user-context requests. JSON bodies are not part of the signature base.
type oauthSigner struct {
	consumerKey    string
	consumerSecret string
	accessToken    string
	accessSecret   string
}

func (s *oauthSigner) header(method, apiURL string, params map[string]string) string {
	nonce := make([]byte, 32)
	rand.Read(nonce)
	nonceStr := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, base64.StdEncoding.EncodeToString(nonce))

	oauthParams := map[string]string{
		"oauth_consumer_key":     s.consumerKey,
		"oauth_nonce":            nonceStr,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(time.Now().Unix(), 10),
		"oauth_token":            s.accessToken,
		"oauth_version":          "1.0",
	}

	allParams := make(map[string]string, len(oauthParams)+len(params))
	for k, v := range oauthParams {
		allParams[k] = v
	}
	for k, v := range params {
		allParams[k] = v
	}

	paramPairs := make([]string, 0, len(allParams))
	for k, v := range allParams {
		paramPairs = append(paramPairs, percentEncode(k)+"="+percentEncode(v))
	}
	sort.Strings(paramPairs)
	paramString := strings.Join(paramPairs, "&")

	signatureBase := method + "&" + percentEncode(apiURL) + "&" + percentEncode(paramString)
	signingKey := percentEncode(s.consumerSecret) + "&" + percentEncode(s.accessSecret)

	mac := hmac.New(sha1.New, []byte(signingKey))
	mac.Write([]byte(signatureBase))
	oauthParams["oauth_signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	authPairs := make([]string, 0, len(oauthParams))
	for k, v := range oauthParams {
		authPairs = append(authPairs, percentEncode(k)+"=\""+percentEncode(v)+"\"")
	}
	sort.Strings(authPairs)

	return "OAuth " + strings.Join(authPairs, ", ")
}

// percentEncode applies RFC 3986 encoding (OAuth requires %20, not +)
func percentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
