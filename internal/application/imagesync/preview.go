package imagesync

import (
	"go.uber.org/zap"

	"github.com/nest-haus/backend/internal/domain/imagesync"
)

// LogPreview writes the plan to log before anything is executed: the
// counts, the cap computation and one line per planned operation.
func LogPreview(log *zap.Logger, plan *imagesync.Plan) {
	log.Info("Sync preview",
		zap.Int("source_images", plan.SourceSize),
		zap.Int("mirror_objects", plan.MirrorSize),
		zap.Int("uploads", len(plan.Uploads)),
		zap.Int("updates", len(plan.Updates)),
		zap.Int("deletes", len(plan.Deletes)),
		zap.Int("protected", len(plan.Protected)),
		zap.Int("duplicates", len(plan.Duplicates)),
		zap.Int("unparsed", len(plan.Unparsed)),
		zap.Int("unchanged", plan.Unchanged),
		zap.Float64("max_delete_fraction", plan.MaxDeleteFraction),
		zap.Int("delete_cap", plan.DeleteCap),
	)

	for _, img := range plan.Uploads {
		log.Info("Preview upload",
			zap.String("key", img.Parsed.Key().String()),
			zap.String("title", img.Parsed.Title),
			zap.String("file", img.Name),
		)
	}
	for _, up := range plan.Updates {
		log.Info("Preview update",
			zap.String("key", up.Source.Parsed.Key().String()),
			zap.String("old_title", up.Mirror.Parsed.Title),
			zap.String("new_title", up.Source.Parsed.Title),
			zap.String("blob", up.Mirror.Key),
		)
	}
	for _, obj := range plan.Deletes {
		log.Warn("Preview delete",
			zap.String("key", obj.Parsed.Key().String()),
			zap.String("title", obj.Parsed.Title),
			zap.String("blob", obj.Key),
		)
	}
	for _, obj := range plan.Protected {
		log.Info("Preview protected", zap.String("blob", obj.Key))
	}
	for _, img := range plan.Duplicates {
		log.Warn("Preview duplicate source ignored",
			zap.String("key", img.Parsed.Key().String()),
			zap.String("file", img.Name),
			zap.Time("modified", img.ModifiedTime),
		)
	}
	if len(plan.Unparsed) > 0 {
		log.Warn("Preview unparsed blob keys left untouched", zap.Strings("keys", plan.Unparsed))
	}
}
