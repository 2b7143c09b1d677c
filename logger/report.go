package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsStream    int64
	errorsScheduler int64
	warnsStream     int64
	warnsScheduler  int64
	windowFlushes   int64
	sampleWrites    int64
	channels        sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "stream") || strings.Contains(component, "fetcher") {
		atomic.AddInt64(&warnsStream, 1)
	} else if strings.Contains(component, "scheduler") || strings.Contains(component, "analytics") {
		atomic.AddInt64(&warnsScheduler, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "stream") || strings.Contains(component, "fetcher") {
		atomic.AddInt64(&errorsStream, 1)
	} else if strings.Contains(component, "scheduler") || strings.Contains(component, "analytics") {
		atomic.AddInt64(&errorsScheduler, 1)
	}
}

// IncrementWindowFlush records one aggregation window flush of the given
// payload size.
func IncrementWindowFlush(size int) {
	atomic.AddInt64(&windowFlushes, 1)
	recordChannel("window_flush", size)
}

// IncrementSampleWrite records one periodic metric sample persisted.
func IncrementSampleWrite(size int) {
	atomic.AddInt64(&sampleWrites, 1)
	recordChannel("sample_write", size)
}

// RecordChannelMessage tracks message and byte counters for a named channel.
func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// StartReport begins periodic logging of runtime and channel statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	fields := Fields{
		"errors_stream":    atomic.LoadInt64(&errorsStream),
		"errors_scheduler": atomic.LoadInt64(&errorsScheduler),
		"warns_stream":     atomic.LoadInt64(&warnsStream),
		"warns_scheduler":  atomic.LoadInt64(&warnsScheduler),
		"window_flushes":   atomic.LoadInt64(&windowFlushes),
		"sample_writes":    atomic.LoadInt64(&sampleWrites),
		"goroutines":       runtime.NumGoroutine(),
		"channels":         channelData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsStream"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsStream)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsScheduler"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsScheduler)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsStream"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&warnsStream)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsScheduler"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&warnsScheduler)))},
		cwtypes.MetricDatum{MetricName: aws.String("WindowFlushes"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&windowFlushes)))},
		cwtypes.MetricDatum{MetricName: aws.String("SampleWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&sampleWrites)))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
