package telemetry

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

var severities = map[log.Level]otellog.Severity{
	log.TraceLevel: otellog.SeverityTrace,
	log.DebugLevel: otellog.SeverityDebug,
	log.InfoLevel:  otellog.SeverityInfo,
	log.WarnLevel:  otellog.SeverityWarn,
	log.ErrorLevel: otellog.SeverityError,
	log.FatalLevel: otellog.SeverityFatal,
	log.PanicLevel: otellog.SeverityFatal4,
}

// OTelHook forwards logrus entries to the global otel logger provider.
type OTelHook struct {
	logger otellog.Logger
}

func NewOTelHook() *OTelHook {
	return &OTelHook{logger: global.GetLoggerProvider().Logger(serviceName)}
}

func (h *OTelHook) Levels() []log.Level {
	return log.AllLevels
}

func (h *OTelHook) Fire(entry *log.Entry) error {
	var record otellog.Record
	record.SetTimestamp(entry.Time)
	record.SetObservedTimestamp(entry.Time)
	record.SetBody(otellog.StringValue(entry.Message))
	record.SetSeverity(severities[entry.Level])
	record.SetSeverityText(entry.Level.String())

	attrs := make([]otellog.KeyValue, 0, len(entry.Data))
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			attrs = append(attrs, otellog.String(k, err.Error()))
			continue
		}
		attrs = append(attrs, otellog.String(k, fmt.Sprint(v)))
	}
	record.AddAttributes(attrs...)

	ctx := entry.Context
	if ctx == nil {
		ctx = context.Background()
	}
	h.logger.Emit(ctx, record)
	return nil
}
