// Package objstore copies save files to S3-compatible object storage.
package objstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

const (
	sigAlgorithm = "AWS4-HMAC-SHA256"
	sigService   = "s3"
	// DefaultRegion suits R2 and MinIO, which accept any region.
	DefaultRegion = "auto"
)

// Client puts objects with path-style addressing and SigV4 auth.
type Client struct {
	endpoint string
	bucket   string
	region   string
	keyID    string
	secret   string
	http     *http.Client
	now      func() time.Time
}

func New(endpoint, bucket, keyID, secret string) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	bucket = strings.TrimSpace(bucket)
	keyID = strings.TrimSpace(keyID)
	secret = strings.TrimSpace(secret)
	if endpoint == "" || bucket == "" || keyID == "" || secret == "" {
		return nil, fmt.Errorf("objstore: endpoint, bucket, key id and secret are required")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("objstore: parse endpoint: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("objstore: invalid endpoint %q", endpoint)
	}
	return &Client{
		endpoint: strings.TrimRight(u.String(), "/"),
		bucket:   bucket,
		region:   DefaultRegion,
		keyID:    keyID,
		secret:   secret,
		http:     &http.Client{Timeout: 2 * time.Minute},
		now:      time.Now,
	}, nil
}

// PutFile uploads localPath under key.
func (c *Client) PutFile(ctx context.Context, key, localPath string) error {
	key = cleanKey(key)
	if key == "" {
		return fmt.Errorf("objstore: empty object key")
	}
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("objstore: %s is a directory", localPath)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint+"/"+c.bucket+"/"+escapeKey(key), f)
	if err != nil {
		return err
	}
	req.ContentLength = st.Size()
	req.Header.Set("Content-Type", "application/octet-stream")
	c.sign(req, hex.EncodeToString(h.Sum(nil)), c.now().UTC())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	return fmt.Errorf("objstore: put %s: status=%d body=%s", key, resp.StatusCode, strings.TrimSpace(string(body)))
}

// sign adds the SigV4 headers for a request whose body hashes to payloadHash.
func (c *Client) sign(req *http.Request, payloadHash string, at time.Time) {
	amzDate := at.Format("20060102T150405Z")
	day := at.Format("20060102")
	host := req.URL.Host

	req.Header.Set("Host", host)
	req.Header.Set("x-amz-content-sha256", payloadHash)
	req.Header.Set("x-amz-date", amzDate)

	const signed = "host;x-amz-content-sha256;x-amz-date"
	canonical := strings.Join([]string{
		req.Method,
		req.URL.EscapedPath(),
		req.URL.RawQuery,
		"host:" + host + "\n" + "x-amz-content-sha256:" + payloadHash + "\n" + "x-amz-date:" + amzDate + "\n",
		signed,
		payloadHash,
	}, "\n")
	scope := day + "/" + c.region + "/" + sigService + "/aws4_request"
	sum := sha256.Sum256([]byte(canonical))
	toSign := sigAlgorithm + "\n" + amzDate + "\n" + scope + "\n" + hex.EncodeToString(sum[:])

	k := hmacSHA256([]byte("AWS4"+c.secret), day)
	k = hmacSHA256(k, c.region)
	k = hmacSHA256(k, sigService)
	k = hmacSHA256(k, "aws4_request")
	sig := hex.EncodeToString(hmacSHA256(k, toSign))

	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		sigAlgorithm, c.keyID, scope, signed, sig))
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	_, _ = h.Write([]byte(data))
	return h.Sum(nil)
}

func cleanKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if clean == "" || clean == "." || strings.HasPrefix(clean, "../") {
		return ""
	}
	return clean
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}
