// Package main is a demo client that signs requests with the AWS SDK's
// Signature V4 signer and sends them to a sigv4-gate server.
package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

func main() {
	var (
		url         = flag.String("url", "http://localhost:8484/v1/whoami", "request URL")
		method      = flag.String("method", http.MethodGet, "HTTP method")
		body        = flag.String("body", "", "request body")
		contentType = flag.String("content-type", "", "Content-Type header")
		accessKey   = flag.String("access-key", "", "access key ID")
		secretKey   = flag.String("secret-key", "", "secret key")
		region      = flag.String("region", "us-east-1", "signing region")
		service     = flag.String("service", "s3", "signing service")
	)
	flag.Parse()

	if *accessKey == "" || *secretKey == "" {
		fmt.Fprintln(os.Stderr, "access-key and secret-key are required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, *url, *method, *body, *contentType, *accessKey, *secretKey, *region, *service); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, url, method, body, contentType, accessKey, secretKey, region, service string) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader([]byte(body)))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	sum := sha256.Sum256([]byte(body))
	payloadHash := hex.EncodeToString(sum[:])

	creds, err := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "").Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve credentials: %w", err)
	}

	signer := v4.NewSigner()
	if err := signer.SignHTTP(ctx, creds, req, payloadHash, service, region, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	fmt.Println(resp.Status)
	fmt.Println(string(respBody))
	return nil
}
