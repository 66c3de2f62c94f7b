// Package vision wraps the image-labeling service behind a contract that
// never lets an upstream failure escape: callers always get a (possibly
// empty) label list.
package vision

import (
	"context"
	"log/slog"
	"math"

	appconfig "snaptag/internal/config"
	"snaptag/internal/models"
	"snaptag/internal/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

// LabelDetector returns labels for a stored object. Implementations must not
// return an error; detection failure degrades to an empty list.
type LabelDetector interface {
	DetectLabels(ctx context.Context, storageKey string, maxLabels int32, minConfidence float32) []models.TagWithConfidence
}

// RekognitionDetector implements LabelDetector against AWS Rekognition,
// reading images directly from the S3 bucket by storage key.
type RekognitionDetector struct {
	client *rekognition.Client
	bucket string
	logger *slog.Logger
}

// NewRekognitionDetector builds a detector from application config.
func NewRekognitionDetector(ctx context.Context, cfg *appconfig.Config, logger *slog.Logger) (*RekognitionDetector, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &RekognitionDetector{
		client: rekognition.NewFromConfig(awsCfg),
		bucket: cfg.S3Bucket,
		logger: logger,
	}, nil
}

// DetectLabels asks Rekognition for labels on the stored object. Any error
// is logged and swallowed; post creation must never block on detection.
func (d *RekognitionDetector) DetectLabels(ctx context.Context, storageKey string, maxLabels int32, minConfidence float32) []models.TagWithConfidence {
	out, err := d.client.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image: &types.Image{
			S3Object: &types.S3Object{
				Bucket: aws.String(d.bucket),
				Name:   aws.String(storageKey),
			},
		},
		MaxLabels:     aws.Int32(maxLabels),
		MinConfidence: aws.Float32(minConfidence),
	})
	if err != nil {
		observability.DetectorFailures.Inc()
		d.logger.WarnContext(ctx, "label detection failed, proceeding without tags",
			slog.String("storage_key", storageKey),
			slog.String("error", err.Error()),
		)
		return nil
	}

	labels := ConvertLabels(out.Labels)
	observability.DetectedLabels.Observe(float64(len(labels)))
	return labels
}

// ConvertLabels maps Rekognition labels to the domain projection, rounding
// confidence to the two decimal places the schema stores.
func ConvertLabels(in []types.Label) []models.TagWithConfidence {
	labels := make([]models.TagWithConfidence, 0, len(in))
	for _, l := range in {
		if l.Name == nil {
			continue
		}
		var confidence float64
		if l.Confidence != nil {
			confidence = math.Round(float64(*l.Confidence)*100) / 100
		}
		labels = append(labels, models.TagWithConfidence{
			Name:       *l.Name,
			Confidence: confidence,
		})
	}
	return labels
}
