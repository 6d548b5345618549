package app

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the image lifecycle counters exported on /metrics.
type Metrics struct {
	IngestedBytes     prometheus.Counter
	UploadTargets     *prometheus.CounterVec
	ImagesRecorded    prometheus.Counter
	QuotaRejections   prometheus.Counter
	UntrackedUploads  prometheus.Counter
	ForeignKeys       prometheus.Counter
	StatusTransitions *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "photoalbum",
			Name:      "ingested_bytes_total",
			Help:      "Bytes written to the storage backend after resizing.",
		}),
		UploadTargets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "photoalbum",
			Name:      "upload_targets_total",
			Help:      "Upload targets issued, by storage backend.",
		}, []string{"backend"}),
		ImagesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "photoalbum",
			Name:      "images_recorded_total",
			Help:      "Image metadata records created.",
		}),
		QuotaRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "photoalbum",
			Name:      "quota_rejections_total",
			Help:      "Metadata saves rejected by the per-user image quota.",
		}),
		UntrackedUploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "photoalbum",
			Name:      "untracked_uploads_total",
			Help:      "Metadata saves for keys without a pending upload target.",
		}),
		ForeignKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "photoalbum",
			Name:      "foreign_key_rejections_total",
			Help:      "Metadata saves rejected because the key belongs to another user.",
		}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "photoalbum",
			Name:      "image_status_transitions_total",
			Help:      "Image status changes, by target status.",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(m.IngestedBytes, m.UploadTargets, m.ImagesRecorded,
			m.QuotaRejections, m.UntrackedUploads, m.ForeignKeys, m.StatusTransitions)
	}
	return m
}
