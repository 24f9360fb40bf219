// AWS SigV4 signing transport for Bedrock-hosted models.
package external

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// BedrockSigningTransport signs outgoing requests with AWS SigV4 so Bedrock
// endpoints accept them without API-key headers.
type BedrockSigningTransport struct {
	inner  http.RoundTripper
	signer *v4.Signer
	creds  aws.CredentialsProvider
	region string
}

// NewBedrockSigningTransport resolves AWS credentials from the default chain
// and wraps inner (or http.DefaultTransport) with request signing.
func NewBedrockSigningTransport(region string, inner http.RoundTripper) (*BedrockSigningTransport, error) {
	if region == "" {
		region = "us-east-1"
	}
	if inner == nil {
		inner = http.DefaultTransport
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &BedrockSigningTransport{
		inner:  inner,
		signer: v4.NewSigner(),
		creds:  cfg.Credentials,
		region: region,
	}, nil
}

// RoundTrip signs the request and delegates to the inner transport.
func (t *BedrockSigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	creds, err := t.creds.Retrieve(req.Context())
	if err != nil {
		return nil, fmt.Errorf("retrieve AWS credentials: %w", err)
	}

	var body []byte
	if req.Body != nil {
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body for signing: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	sum := sha256.Sum256(body)
	payloadHash := hex.EncodeToString(sum[:])

	if err := t.signer.SignHTTP(req.Context(), creds, req, payloadHash, "bedrock", t.region, time.Now()); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	return t.inner.RoundTrip(req)
}
