package services

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

type SafeSearchResult struct {
	Adult    string
	Violence string
	Racy     string
	Spoof    string
	Medical  string
}

func isUnsafeLikelyOrHigher(l string) bool {
	return l == "LIKELY" || l == "VERY_LIKELY"
}

func (r *SafeSearchResult) IsUnsafe() bool {
	return isUnsafeLikelyOrHigher(r.Adult) || isUnsafeLikelyOrHigher(r.Violence) || isUnsafeLikelyOrHigher(r.Racy)
}

// ImageClassifier rates an image for unsafe content. uri is either a gs://
// object URI or a public https URL.
type ImageClassifier interface {
	DetectSafeSearch(ctx context.Context, uri string) (*SafeSearchResult, error)
}

type VisionSafeSearch struct {
	svc *vision.Service
}

// NewVisionSafeSearch uses Application Default Credentials.
func NewVisionSafeSearch(ctx context.Context) (*VisionSafeSearch, error) {
	svc, err := vision.NewService(ctx, option.WithScopes(vision.CloudPlatformScope))
	if err != nil {
		return nil, errors.Wrap(err, "safesearch: vision client")
	}
	return &VisionSafeSearch{svc: svc}, nil
}

// DetectSafeSearch runs Vision SAFE_SEARCH_DETECTION.
func (v *VisionSafeSearch) DetectSafeSearch(ctx context.Context, uri string) (*SafeSearchResult, error) {
	source := &vision.ImageSource{}
	if strings.HasPrefix(uri, "gs://") {
		source.GcsImageUri = uri
	} else {
		source.ImageUri = uri
	}

	req := &vision.AnnotateImageRequest{
		Image: &vision.Image{Source: source},
		Features: []*vision.Feature{
			{Type: "SAFE_SEARCH_DETECTION"},
		},
	}

	call := v.svc.Images.Annotate(&vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{req},
	})
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrapf(err, "safesearch: annotate %s", uri)
	}
	if len(resp.Responses) == 0 {
		return &SafeSearchResult{}, nil
	}
	r := resp.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return nil, errors.Errorf("safesearch: annotate %s: %s", uri, r.Error.Message)
	}
	ss := r.SafeSearchAnnotation
	if ss == nil {
		return &SafeSearchResult{}, nil
	}

	return &SafeSearchResult{
		Adult:    ss.Adult,
		Violence: ss.Violence,
		Racy:     ss.Racy,
		Spoof:    ss.Spoof,
		Medical:  ss.Medical,
	}, nil
}
