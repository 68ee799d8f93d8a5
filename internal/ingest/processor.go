package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/mikig28/secbrain/internal/classify"
	"github.com/mikig28/secbrain/internal/extract"
)

// Outcome counts what processing one or more messages did.
type Outcome struct {
	VideosAdded  int `json:"videos_added"`
	LinksAdded   int `json:"links_added"`
	EntriesAdded int `json:"entries_added"`
	ImagesStored int `json:"images_stored"`
	Duplicates   int `json:"duplicates"`
	Errors       int `json:"errors"`
}

// Add accumulates other into o.
func (o *Outcome) Add(other Outcome) {
	o.VideosAdded += other.VideosAdded
	o.LinksAdded += other.LinksAdded
	o.EntriesAdded += other.EntriesAdded
	o.ImagesStored += other.ImagesStored
	o.Duplicates += other.Duplicates
	o.Errors += other.Errors
}

// Processor applies the persistence rules to one message at a time.
type Processor struct {
	sink Sink
	log  *zap.Logger
}

func NewProcessor(sink Sink, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.L()
	}
	return &Processor{sink: sink, log: log}
}

// Process persists msg. URLs are handled first, in order; then the body.
// Store failures are logged and counted, never returned: the caller
// treats the message as processed either way.
func (p *Processor) Process(ctx context.Context, msg extract.ChatMessage) Outcome {
	var out Outcome
	log := p.log.With(zap.String("message_id", msg.ExternalID))

	for _, u := range msg.URLs {
		r := classify.Classify(u)
		switch r.Kind {
		case classify.KindVideo:
			inserted, err := p.sink.UpsertVideoIfAbsent(ctx, r.VideoID, u)
			p.count(&out, &out.VideosAdded, inserted, err, log.With(zap.String("video_id", r.VideoID)), "video")
		default:
			inserted, err := p.sink.UpsertLinkIfAbsent(ctx, u, r.Platform)
			p.count(&out, &out.LinksAdded, inserted, err, log.With(zap.String("url", u)), "link")
		}
	}

	switch body := msg.Body.(type) {
	case extract.Image:
		if len(body.Data) == 0 {
			log.Warn("image data unavailable, skipping image")
			out.Errors++
			break
		}
		id, err := p.sink.StoreImage(ctx, body.Data)
		if err != nil {
			log.Error("store image failed", zap.Error(err))
			out.Errors++
			break
		}
		log.Info("stored image", zap.String("video_id", id), zap.Int("bytes", len(body.Data)))
		out.ImagesStored++
	case extract.Text:
		if body.Content == "" {
			break
		}
		inserted, err := p.sink.UpsertEntryIfAbsent(ctx, body.Content, msg.Sender)
		p.count(&out, &out.EntriesAdded, inserted, err, log.With(zap.String("sender", msg.Sender)), "entry")
	}

	return out
}

func (p *Processor) count(out *Outcome, added *int, inserted bool, err error, log *zap.Logger, what string) {
	switch {
	case err != nil:
		log.Error("store "+what+" failed", zap.Error(err))
		out.Errors++
	case inserted:
		log.Info("stored new " + what)
		*added++
	default:
		log.Debug(what + " already stored, skipping")
		out.Duplicates++
	}
}
