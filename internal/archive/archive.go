package archive

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "github.com/Mulfari/btrader-sub000/config"
	"github.com/Mulfari/btrader-sub000/internal/models"
	"github.com/Mulfari/btrader-sub000/logger"
)

type windowParquetRecord struct {
	Symbol     string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp  int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	BuyVolume  float64 `parquet:"name=buy_volume, type=DOUBLE"`
	SellVolume float64 `parquet:"name=sell_volume, type=DOUBLE"`
	BuyCount   int32   `parquet:"name=buy_count, type=INT32"`
	SellCount  int32   `parquet:"name=sell_count, type=INT32"`
	VWAP       float64 `parquet:"name=vwap, type=DOUBLE"`
	PriceHigh  float64 `parquet:"name=price_high, type=DOUBLE"`
	PriceLow   float64 `parquet:"name=price_low, type=DOUBLE"`
}

type windowBatch struct {
	Symbol      string
	Entries     []models.TradeWindow
	Timestamp   time.Time
	Reason      string
	RecordCount int
}

type memFile struct {
	buffer *bytes.Buffer
}

func newMemFile() *memFile {
	return &memFile{buffer: &bytes.Buffer{}}
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }
func (m *memFile) Bytes() []byte                             { return m.buffer.Bytes() }

// Archiver cold-stores flushed trade windows as partitioned Parquet files in
// S3. Windows are buffered per symbol and uploaded when the buffer fills or
// the flush interval fires.
type Archiver struct {
	storage appconfig.StorageConfig
	service appconfig.ServiceConfig

	s3Client *s3.Client
	log      *logger.Log

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	buffer      map[string][]models.TradeWindow
	flushTicker *time.Ticker
	maxBuffer   int
	running     bool

	jobCh chan windowBatch
}

// NewArchiver configures the S3 archiver. It fails when S3 storage is
// disabled; callers should simply not construct one in that case.
func NewArchiver(storage appconfig.StorageConfig, service appconfig.ServiceConfig) (*Archiver, error) {
	if !storage.S3.Enabled {
		return nil, fmt.Errorf("s3 storage disabled")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(storage.S3.Region)}
	if storage.S3.AccessKeyID != "" && storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				storage.S3.AccessKeyID,
				storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(storage.S3.Endpoint)
		}
		o.UsePathStyle = storage.S3.PathStyle
	})

	maxBuffer := storage.Archive.MaxBuffer
	if maxBuffer <= 0 {
		maxBuffer = 512
	}

	return &Archiver{
		storage:   storage,
		service:   service,
		s3Client:  s3Client,
		log:       logger.GetLogger(),
		buffer:    make(map[string][]models.TradeWindow),
		maxBuffer: maxBuffer,
		jobCh:     make(chan windowBatch, 128),
	}, nil
}

// Start launches the flush and upload workers.
func (a *Archiver) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("archiver already running")
	}
	a.running = true
	a.ctx, a.cancel = context.WithCancel(ctx)

	interval := a.storage.Archive.FlushInterval
	if interval <= 0 {
		interval = time.Minute
	}
	a.flushTicker = time.NewTicker(interval)
	a.mu.Unlock()

	a.wg.Add(1)
	go a.flushLoop()

	for i := 0; i < 2; i++ {
		a.wg.Add(1)
		go a.uploadWorker()
	}

	a.log.WithComponent("archiver").WithFields(logger.Fields{
		"bucket":         a.storage.S3.Bucket,
		"flush_interval": interval.String(),
		"max_buffer":     a.maxBuffer,
	}).Info("trade window archiver started")
	return nil
}

// Stop flushes pending buffers and waits for uploads to finish.
func (a *Archiver) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	cancel := a.cancel
	ticker := a.flushTicker
	a.mu.Unlock()

	ticker.Stop()
	cancel()
	a.flushBuffers("shutdown")
	close(a.jobCh)
	a.wg.Wait()
	a.log.WithComponent("archiver").Info("trade window archiver stopped")
}

// Add buffers one flushed trade window for archival.
func (a *Archiver) Add(w models.TradeWindow) {
	var flushEntries []models.TradeWindow

	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.buffer[w.Symbol] = append(a.buffer[w.Symbol], w)
	if len(a.buffer[w.Symbol]) >= a.maxBuffer {
		flushEntries = a.buffer[w.Symbol]
		delete(a.buffer, w.Symbol)
	}
	a.mu.Unlock()

	if len(flushEntries) > 0 {
		a.enqueueBatch(w.Symbol, flushEntries, "max_buffer")
	}
}

func (a *Archiver) flushLoop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.flushTicker.C:
			a.flushBuffers("interval")
		}
	}
}

func (a *Archiver) flushBuffers(reason string) {
	a.mu.Lock()
	buffers := a.buffer
	a.buffer = make(map[string][]models.TradeWindow)
	a.mu.Unlock()

	for symbol, entries := range buffers {
		if len(entries) == 0 {
			continue
		}
		a.enqueueBatch(symbol, entries, reason)
	}
}

func (a *Archiver) enqueueBatch(symbol string, entries []models.TradeWindow, reason string) {
	batch := windowBatch{
		Symbol:      symbol,
		Entries:     entries,
		Timestamp:   entries[len(entries)-1].Timestamp,
		Reason:      reason,
		RecordCount: len(entries),
	}
	// Prefer the send so shutdown flushes still reach the workers after the
	// context is cancelled.
	select {
	case a.jobCh <- batch:
		return
	default:
	}
	select {
	case a.jobCh <- batch:
	case <-a.ctx.Done():
	}
}

func (a *Archiver) uploadWorker() {
	defer a.wg.Done()
	for batch := range a.jobCh {
		a.processBatch(batch)
	}
}

func (a *Archiver) processBatch(batch windowBatch) {
	entryLog := a.log.WithComponent("archiver").WithFields(logger.Fields{
		"symbol":       batch.Symbol,
		"record_count": batch.RecordCount,
		"reason":       batch.Reason,
	})

	data, size, err := createParquet(batch)
	if err != nil {
		entryLog.WithError(err).Error("failed to create trade window parquet")
		return
	}

	key := generateS3Key(batch)
	if err := a.uploadToS3(key, data); err != nil {
		entryLog.WithError(err).WithFields(logger.Fields{"key": key}).Error("failed to upload trade window parquet")
		return
	}

	entryLog.WithFields(logger.Fields{
		"s3_key":    key,
		"file_size": size,
	}).Info("trade window batch archived")
}

func createParquet(batch windowBatch) ([]byte, int64, error) {
	mem := newMemFile()
	pw, err := writer.NewParquetWriter(mem, new(windowParquetRecord), 1)
	if err != nil {
		return nil, 0, fmt.Errorf("new parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, w := range batch.Entries {
		rec := windowParquetRecord{
			Symbol:     w.Symbol,
			Timestamp:  w.Timestamp.UnixMilli(),
			BuyVolume:  w.BuyVolume,
			SellVolume: w.SellVolume,
			BuyCount:   int32(w.BuyCount),
			SellCount:  int32(w.SellCount),
			VWAP:       w.VWAP,
			PriceHigh:  w.PriceHigh,
			PriceLow:   w.PriceLow,
		}
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return nil, 0, fmt.Errorf("write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, 0, fmt.Errorf("finalize parquet: %w", err)
	}

	data := mem.Bytes()
	return data, int64(len(data)), nil
}

func generateS3Key(batch windowBatch) string {
	datePart := batch.Timestamp.UTC().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s_windows.parquet",
		strings.ToUpper(batch.Symbol),
		batch.Timestamp.UTC().Format("20060102150405")+uuid.NewString(),
	)
	key := filepath.Join(
		"trade_windows",
		fmt.Sprintf("symbol=%s", strings.ToUpper(batch.Symbol)),
		fmt.Sprintf("date=%s", datePart),
		filename,
	)
	return filepath.ToSlash(key)
}

func (a *Archiver) uploadToS3(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":    "parquet",
			"compression":     "snappy",
			"service-version": a.service.Version,
		},
	}

	// Detached from the run context so shutdown flushes can still upload.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := a.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("upload trade window parquet: %w", err)
	}
	return nil
}
