package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/domain/models"
	domrepo "github.com/profect-team3/order-platform-msa-infer-pipeline/internal/domain/repository"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/loader"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/modelsource"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/predictor"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/timeseries"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/cache"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/logger"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/util"
)

var (
	// ErrModelUnavailable is returned by Predict while no predictor is loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrUnknownStore is returned when the target store has no records.
	ErrUnknownStore = errors.New("store not present in request")
)

// ModelLoader materializes and opens a model source.
type ModelLoader interface {
	Load(ctx context.Context, src modelsource.Source) (*loader.Loaded, error)
}

// ForecastConfig controls ForecastService.
type ForecastConfig struct {
	Candidates    modelsource.Candidates
	Variant       string
	ReloadOnReady bool
	Timeout       time.Duration
	CacheTTL      time.Duration
}

// modelState is swapped as a whole so readers never see a handle paired
// with another load's error.
type modelState struct {
	loaded *loader.Loaded
	err    error
	gen    uint64
}

// ForecastService owns the predictor handle and serves forecasts from it.
type ForecastService struct {
	cfg     ForecastConfig
	loader  ModelLoader
	cache   cache.Service
	metrics domrepo.Metrics
	log     *logger.Logger
	now     func() time.Time

	src    modelsource.Source
	srcErr error

	mu    sync.Mutex
	state atomic.Pointer[modelState]
}

// ForecastOption configures ForecastService.
type ForecastOption func(*ForecastService)

// WithForecastCache caches predict responses per loaded model.
func WithForecastCache(c cache.Service) ForecastOption {
	return func(s *ForecastService) { s.cache = c }
}

// WithForecastMetrics sets the metrics sink.
func WithForecastMetrics(m domrepo.Metrics) ForecastOption {
	return func(s *ForecastService) { s.metrics = m }
}

// WithForecastLogger sets the logger.
func WithForecastLogger(l *logger.Logger) ForecastOption {
	return func(s *ForecastService) { s.log = l }
}

// NewForecastService resolves the model source once. An unresolvable source
// is not an error here; the service stays unready and reports why.
func NewForecastService(cfg ForecastConfig, ld ModelLoader, opts ...ForecastOption) *ForecastService {
	s := &ForecastService{
		cfg:    cfg,
		loader: ld,
		log:    logger.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.src, s.srcErr = modelsource.Resolve(cfg.Candidates)
	s.state.Store(&modelState{err: s.srcErr})
	return s
}

// Source returns the resolved source, or an error when none is configured.
func (s *ForecastService) Source() (modelsource.Source, error) {
	return s.src, s.srcErr
}

// Load loads the resolved source and swaps it in. On failure the previous
// handle, if any, keeps serving. Errors satisfying loader.IsFatal should
// stop the process at startup.
func (s *ForecastService) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *ForecastService) loadLocked(ctx context.Context) error {
	prev := s.state.Load()
	if s.srcErr != nil {
		s.log.Warn("no model source configured, serving unready", logger.Error(s.srcErr))
		s.recordLoad(false, prev.loaded != nil)
		return s.srcErr
	}

	start := s.now()
	loaded, err := s.loader.Load(ctx, s.src)
	s.recordLatency("model_load", start)
	if err != nil {
		s.state.Store(&modelState{loaded: prev.loaded, err: err, gen: prev.gen})
		s.log.Error("model load failed",
			logger.String("source", s.src.String()),
			logger.String("origin", string(s.src.Origin)),
			logger.Bool("keeping_previous", prev.loaded != nil),
			logger.Error(err),
		)
		s.recordLoad(false, prev.loaded != nil)
		return err
	}

	s.state.Store(&modelState{loaded: loaded, gen: prev.gen + 1})
	s.recordLoad(true, true)
	return nil
}

// Reload is Load under another name for the admin endpoint.
func (s *ForecastService) Reload(ctx context.Context) (models.ReadyStatus, error) {
	err := s.Load(ctx)
	return s.status(), err
}

// Ready reports the handle state. With ReloadOnReady set, an unready
// service first attempts a load.
func (s *ForecastService) Ready(ctx context.Context) models.ReadyStatus {
	if s.cfg.ReloadOnReady && s.state.Load().loaded == nil && s.srcErr == nil {
		s.mu.Lock()
		if s.state.Load().loaded == nil {
			_ = s.loadLocked(ctx)
		}
		s.mu.Unlock()
	}
	return s.status()
}

func (s *ForecastService) status() models.ReadyStatus {
	st := s.state.Load()
	out := models.ReadyStatus{Ready: st.loaded != nil}
	if s.srcErr == nil {
		uri := s.src.URI()
		out.ModelURI = &uri
	}
	if st.err != nil {
		out.Error = st.err.Error()
	}
	return out
}

// Predict forecasts the request's target store.
func (s *ForecastService) Predict(ctx context.Context, req *models.PredictRequest) (*models.PredictResponse, error) {
	st := s.state.Load()
	if st.loaded == nil {
		s.recordError("model_unavailable")
		return nil, fmt.Errorf("%w: source %s", ErrModelUnavailable, s.sourceLabel())
	}
	store := req.TargetStore()

	key, cacheable := s.cacheKey(st.gen, req)
	if cacheable {
		var cached models.PredictResponse
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			s.recordCache(true)
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("forecast cache get failed", logger.String("key", key), logger.Error(err))
		}
		s.recordCache(false)
	}

	table, err := timeseries.Translate(req.RealDataItemList)
	if err != nil {
		s.recordError("translate")
		return nil, fmt.Errorf("translate records: %w", err)
	}
	if _, ok := table.Last(store); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, store)
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	start := s.now()
	points, err := st.loaded.Predictor.Predict(ctx, predictor.Request{
		Table:            table,
		PredictionLength: req.PredictionLength,
		Model:            s.cfg.Variant,
	})
	s.recordLatency("predict", start)
	if err != nil {
		s.recordError("predict")
		return nil, fmt.Errorf("predict: %w", err)
	}

	unit := unitPrice(req.RealDataItemList, store)
	preds := make([]models.Prediction, 0, req.PredictionLength)
	for _, p := range points {
		if p.ItemID != store {
			continue
		}
		qty := roundQuantity(p.Mean)
		preds = append(preds, models.Prediction{
			Timestamp:         util.FormatForecastTimestamp(p.Timestamp),
			PredOrderQuantity: qty,
			PredSalesRevenue:  int64(math.Round(float64(qty) * unit)),
		})
	}

	resp := &models.PredictResponse{
		StoreID:          store,
		PredictionLength: req.PredictionLength,
		Predictions:      preds,
		Timestamp:        s.now().Format(time.RFC3339),
		Model:            s.cfg.Variant,
	}
	if s.metrics != nil {
		s.metrics.RecordPrediction(string(st.loaded.Source.Origin), len(preds))
	}
	if cacheable {
		if err := s.cache.Set(ctx, key, resp, s.cfg.CacheTTL); err != nil {
			s.log.Warn("forecast cache set failed", logger.String("key", key), logger.Error(err))
		}
	}
	return resp, nil
}

// cacheKey scopes entries to the model generation so a reload never serves
// forecasts from the previous model.
func (s *ForecastService) cacheKey(gen uint64, req *models.PredictRequest) (string, bool) {
	if s.cache == nil || s.cfg.CacheTTL <= 0 {
		return "", false
	}
	h, err := cache.HashKey(req)
	if err != nil {
		return "", false
	}
	return cache.GenerateKey("forecast", fmt.Sprintf("%d:%s", gen, h)), true
}

func (s *ForecastService) sourceLabel() string {
	if s.srcErr != nil {
		return "<unresolved>"
	}
	return s.src.URI()
}

// roundQuantity clamps at zero and rounds half away from zero.
func roundQuantity(mean float64) int64 {
	if math.IsNaN(mean) || mean <= 0 {
		return 0
	}
	return int64(math.Round(mean))
}

// unitPrice is revenue per ordered unit over the store's history.
func unitPrice(records []models.DataRecord, store string) float64 {
	var qty, rev int64
	for i := range records {
		r := &records[i]
		if r.StoreID != store || r.RealOrderQuantity == nil || r.RealSalesRevenue == nil {
			continue
		}
		qty += *r.RealOrderQuantity
		rev += *r.RealSalesRevenue
	}
	if qty <= 0 {
		return 0
	}
	return float64(rev) / float64(qty)
}

func (s *ForecastService) recordLoad(ok, loaded bool) {
	if s.metrics != nil {
		s.metrics.RecordModelLoad(ok, loaded)
	}
}

func (s *ForecastService) recordError(kind string) {
	if s.metrics != nil {
		s.metrics.RecordError(kind)
	}
}

func (s *ForecastService) recordCache(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCache(hit)
	}
}

func (s *ForecastService) recordLatency(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordLatency(op, s.now().Sub(start).Seconds())
	}
}
