// Package delivery turns transcoder output locations into CDN URLs.
package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tendant/simple-vod/pkg/schema"
)

// ErrUnsupportedFormat is returned for output groups with no registered rewriter.
var ErrUnsupportedFormat = errors.New("unsupported output group format")

// GroupTypeHLS is the output group type MediaConvert reports for Apple HLS.
const GroupTypeHLS = "HLS_GROUP"

// groupRewriter rewrites the storage URLs of one output group in place.
type groupRewriter func(r *Rewriter, group *schema.OutputGroupDetail)

var groupRewriters = map[string]groupRewriter{
	GroupTypeHLS: rewriteHLS,
}

// Rewriter maps s3://<Bucket>/<path> to https://<CDNDomain>/<path>.
type Rewriter struct {
	Bucket    string
	CDNDomain string
}

// Supported reports whether groupType has a rewriter.
func Supported(groupType string) bool {
	_, ok := groupRewriters[groupType]
	return ok
}

// Rewrite returns a copy of groups with every storage URL replaced by its CDN
// equivalent. Any unsupported group aborts the whole rewrite.
func (r *Rewriter) Rewrite(groups []schema.OutputGroupDetail) ([]schema.OutputGroupDetail, error) {
	out := make([]schema.OutputGroupDetail, 0, len(groups))
	for _, group := range groups {
		rewrite, ok := groupRewriters[group.Type]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, group.Type)
		}
		cp := cloneGroup(group)
		rewrite(r, &cp)
		out = append(out, cp)
	}
	return out, nil
}

// URL rewrites a single location. Locations outside the bucket are returned
// unchanged.
func (r *Rewriter) URL(location string) string {
	prefix := "s3://" + r.Bucket + "/"
	if r.Bucket == "" || !strings.HasPrefix(location, prefix) {
		return location
	}
	return "https://" + r.CDNDomain + "/" + strings.TrimPrefix(location, prefix)
}

func rewriteHLS(r *Rewriter, group *schema.OutputGroupDetail) {
	for i, path := range group.PlaylistFilePaths {
		group.PlaylistFilePaths[i] = r.URL(path)
	}
	for i := range group.OutputDetails {
		paths := group.OutputDetails[i].OutputFilePaths
		for j, path := range paths {
			paths[j] = r.URL(path)
		}
	}
}

func cloneGroup(group schema.OutputGroupDetail) schema.OutputGroupDetail {
	cp := group
	cp.PlaylistFilePaths = append([]string(nil), group.PlaylistFilePaths...)
	cp.OutputDetails = make([]schema.OutputDetail, len(group.OutputDetails))
	for i, detail := range group.OutputDetails {
		cp.OutputDetails[i] = detail
		cp.OutputDetails[i].OutputFilePaths = append([]string(nil), detail.OutputFilePaths...)
		if detail.VideoDetails != nil {
			vd := *detail.VideoDetails
			vd.Extra = cloneExtra(vd.Extra)
			cp.OutputDetails[i].VideoDetails = &vd
		}
		cp.OutputDetails[i].Extra = cloneExtra(detail.Extra)
	}
	return cp
}

func cloneExtra(extra map[string]json.RawMessage) map[string]json.RawMessage {
	if extra == nil {
		return nil
	}
	cp := make(map[string]json.RawMessage, len(extra))
	for k, v := range extra {
		cp[k] = v
	}
	return cp
}
