package moderation

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.openai.com/v1"

const denialDefault = "I can't help with that request."

// Denial text per category, most specific wording first. The check order
// below decides which one wins when several categories fire at once.
var categoryDenials = map[string]string{
	"sexual/minors":          "I can't engage with content that sexualizes minors. This conversation cannot continue on this topic.",
	"sexual":                 "I can't help with sexually explicit content.",
	"harassment/threatening": "I can't help with threatening or intimidating messages directed at people.",
	"harassment":             "I can't help with content that harasses or demeans people.",
	"hate/threatening":       "I can't help with violent threats against protected groups.",
	"hate":                   "I can't help with content that promotes hate based on identity.",
	"illicit/violent":        "I can't provide guidance on violent wrongdoing.",
	"illicit":                "I can't provide guidance on illegal activity.",
	"self-harm/instructions": "I can't provide instructions related to self-harm. If you're struggling, please reach out to a crisis line or someone you trust.",
	"self-harm/intent":       "I'm not able to help with this, but please consider talking to a crisis line or someone you trust. You don't have to go through this alone.",
	"self-harm":              "I can't engage with content about self-harm, but support is available if you need it.",
	"violence/graphic":       "I can't help with graphic depictions of violence.",
	"violence":               "I can't help with violent content.",
}

var categoryCheckOrder = []string{
	"sexual/minors",
	"sexual",
	"harassment/threatening",
	"harassment",
	"hate/threatening",
	"hate",
	"illicit/violent",
	"illicit",
	"self-harm/instructions",
	"self-harm/intent",
	"self-harm",
	"violence/graphic",
	"violence",
}

type Result struct {
	Flagged       bool
	Category      string
	DenialMessage string
}

type Config struct {
	APIKey    string
	BaseURL   string
	CacheSize int
	CacheTTL  time.Duration
	Timeout   time.Duration
}

// Checker screens user text against a hosted moderation endpoint. It fails
// open: any transport or decode problem yields an unflagged result, the chat
// must not go down because the moderation endpoint did.
type Checker struct {
	apiKey  string
	baseURL string
	client  *http.Client
	cache   *expirable.LRU[string, Result]
}

func NewChecker(c Config) *Checker {
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ck := &Checker{
		apiKey:  c.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
	if c.CacheSize > 0 && c.CacheTTL > 0 {
		ck.cache = expirable.NewLRU[string, Result](c.CacheSize, nil, c.CacheTTL)
	}
	return ck
}

func buildCacheKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return "moderation:" + hex.EncodeToString(hash[:])
}

// Check classifies text and returns the denial to show when it is flagged.
// Empty input and missing credentials are both treated as not flagged.
func (ck *Checker) Check(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{}
	}
	if ck.apiKey == "" {
		return Result{}
	}
	cacheKey := buildCacheKey(text)
	if ck.cache != nil {
		if cached, ok := ck.cache.Get(cacheKey); ok {
			logutil.GetLogger(ctx).Debug("moderation cache hit", zap.Bool("flagged", cached.Flagged))
			return cached
		}
	}
	res, err := ck.classify(ctx, text)
	if err != nil {
		logutil.GetLogger(ctx).Warn("moderation check failed, allowing message", zap.Error(err))
		return Result{}
	}
	if ck.cache != nil {
		ck.cache.Add(cacheKey, res)
	}
	return res
}

type moderationResponse struct {
	Results []struct {
		Flagged    bool            `json:"flagged"`
		Categories map[string]bool `json:"categories"`
	} `json:"results"`
}

func (ck *Checker) classify(ctx context.Context, text string) (Result, error) {
	payload, err := json.Marshal(map[string]string{"input": text})
	if err != nil {
		return Result{}, fmt.Errorf("encode moderation request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ck.baseURL+"/moderations", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build moderation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ck.apiKey)

	rsp, err := ck.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("call moderation endpoint: %w", err)
	}
	defer rsp.Body.Close()
	if rsp.StatusCode < 200 || rsp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(rsp.Body, 4096))
		return Result{}, fmt.Errorf("moderation endpoint status %d: %s", rsp.StatusCode, string(body))
	}
	var decoded moderationResponse
	if err := json.NewDecoder(rsp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("decode moderation response: %w", err)
	}
	if len(decoded.Results) == 0 || !decoded.Results[0].Flagged {
		return Result{}, nil
	}
	for _, category := range categoryCheckOrder {
		if decoded.Results[0].Categories[category] {
			return Result{Flagged: true, Category: category, DenialMessage: categoryDenials[category]}, nil
		}
	}
	return Result{Flagged: true, DenialMessage: denialDefault}, nil
}
