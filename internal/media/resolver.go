/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"errors"
	"strings"
)

// ErrNoSigner is returned for s3:// references when no bucket access is configured.
var ErrNoSigner = errors.New("s3 media reference but no S3 signer configured")

// Resolver turns slot media references into URLs a screen can load.
//
//   - s3://bucket/key is presigned
//   - a relative path is prefixed with the backend asset origin
//   - anything else is returned unchanged
type Resolver struct {
	AssetBaseURL string
	Signer       *S3Signer
}

// Resolve implements player.Resolver.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, "s3://"):
		if r.Signer == nil {
			return "", ErrNoSigner
		}
		return r.Signer.Sign(ctx, ref)
	case isAbsolute(ref):
		return ref, nil
	case r.AssetBaseURL == "":
		return ref, nil
	default:
		return strings.TrimRight(r.AssetBaseURL, "/") + "/" + strings.TrimLeft(ref, "/"), nil
	}
}

func isAbsolute(ref string) bool {
	if strings.HasPrefix(ref, "//") {
		return true
	}
	scheme, _, ok := strings.Cut(ref, "://")
	return ok && scheme != "" && !strings.ContainsAny(scheme, "/?#")
}
