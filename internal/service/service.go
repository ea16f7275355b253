package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-outlook-service/internal/aggregate"
	"github.com/kjstillabower/climate-outlook-service/internal/cache"
	"github.com/kjstillabower/climate-outlook-service/internal/client"
	"github.com/kjstillabower/climate-outlook-service/internal/models"
	"github.com/kjstillabower/climate-outlook-service/internal/observability"
	"github.com/kjstillabower/climate-outlook-service/internal/outlookerr"
	"github.com/kjstillabower/climate-outlook-service/internal/risk"
	"github.com/kjstillabower/climate-outlook-service/internal/stats"
	"github.com/kjstillabower/climate-outlook-service/internal/units"
	"github.com/kjstillabower/climate-outlook-service/internal/validation"
	"github.com/kjstillabower/climate-outlook-service/internal/window"
)

// Clock supplies the current time. Injected so the window anchoring and
// cache expiry are testable without ambient time.Now.
type Clock func() time.Time

// Options configures the outlook pipeline. Zero values get sensible
// defaults in New.
type Options struct {
	CacheTTL  time.Duration
	CacheType string // label for cache hit metrics: in_memory, memcached, sqlite

	Limits validation.Limits

	ForecastHorizonDays int
	ArchiveStart        time.Time
	// ArchiveLagDays is how far behind "today" the archive endpoint lags;
	// the usable archive end is today minus this many days.
	ArchiveLagDays int

	Thresholds risk.Thresholds

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	Clock Clock
}

// OutlookService computes climate outlooks: cache-aside memoization in
// front of the fetch/aggregate/summarize/classify pipeline.
type OutlookService struct {
	provider  client.Provider
	cache     cache.Cache
	logger    *zap.Logger
	opts      Options
	stampede  *stampedeTracker
	coalescer *requestCoalescer
}

// New creates an OutlookService. cache may be nil (every request computes).
func New(provider client.Provider, c cache.Cache, logger *zap.Logger, opts Options) *OutlookService {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Minute
	}
	if opts.CacheType == "" {
		opts.CacheType = "in_memory"
	}
	if opts.Limits == (validation.Limits{}) {
		opts.Limits = validation.DefaultLimits()
	}
	if opts.ForecastHorizonDays <= 0 {
		opts.ForecastHorizonDays = 16
	}
	if opts.ArchiveLagDays <= 0 {
		opts.ArchiveLagDays = 2
	}
	if opts.Thresholds.MinSampleForEmpirical == 0 {
		opts.Thresholds = risk.DefaultThresholds()
	}
	if opts.CoalesceTimeout <= 0 {
		opts.CoalesceTimeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &OutlookService{
		provider: provider,
		cache:    c,
		logger:   logger,
		opts:     opts,
		stampede: newStampedeTracker(),
	}
	if opts.CoalesceEnabled {
		s.coalescer = newRequestCoalescer(opts.CoalesceTimeout)
	}
	return s
}

// ComputeOutlook validates the request, serves from cache when possible and
// otherwise runs the full pipeline: resolve the sampling window, fetch raw
// observations, aggregate per day, summarize distributions, classify risks.
// Identical requests against the same upstream snapshot yield identical
// responses, which is what makes caching and coalescing safe.
func (s *OutlookService) ComputeOutlook(ctx context.Context, req models.OutlookRequest) (models.OutlookResponse, error) {
	today := s.opts.Clock()
	target, err := validation.ValidateRequest(req, s.opts.Limits, today)
	if err != nil {
		return models.OutlookResponse{}, err
	}

	key := cache.Key{
		Lat:        req.Lat,
		Lon:        req.Lon,
		TargetDate: req.TargetDate,
		WindowDays: req.WindowDays,
		Units:      req.Units,
	}

	if resp, ok := s.cacheGet(ctx, key); ok {
		return resp, nil
	}

	concurrent := s.stampede.RecordMiss(key.String())
	defer s.stampede.RecordHit(key.String())
	if concurrent > 1 {
		observability.CacheStampedeDetectedTotal.Inc()
		observability.CacheStampedeConcurrency.Observe(float64(concurrent))
	}

	compute := func() (models.OutlookResponse, error) {
		return s.compute(ctx, req, target, today)
	}

	var resp models.OutlookResponse
	if s.coalescer != nil {
		waitStart := time.Now()
		var shared bool
		resp, shared, err = s.coalescer.GetOrDo(ctx, key.String(), compute)
		if shared {
			observability.RequestCoalescingHitsTotal.Inc()
			observability.RequestCoalescingWaitSeconds.Observe(time.Since(waitStart).Seconds())
			if err == nil {
				// Only the leader writes to the cache.
				return resp, nil
			}
		}
	} else {
		resp, err = compute()
	}
	if err != nil {
		return models.OutlookResponse{}, err
	}

	s.cacheSet(ctx, key, resp)
	return resp, nil
}

// compute runs the pipeline for one cache miss. All statistics are computed
// in metric units; conversion to the requested system happens last.
func (s *OutlookService) compute(ctx context.Context, req models.OutlookRequest, target, today time.Time) (models.OutlookResponse, error) {
	start := time.Now()

	avail := window.Availability{
		ForecastHorizonDays: s.opts.ForecastHorizonDays,
		ArchiveStart:        s.opts.ArchiveStart,
		ArchiveEnd:          today.AddDate(0, 0, -s.opts.ArchiveLagDays),
	}
	win, err := window.SelectWindow(today, target, req.WindowDays, avail)
	if err != nil {
		return models.OutlookResponse{}, err
	}

	obs, err := s.provider.FetchWindow(ctx, req.Lat, req.Lon, win)
	if err != nil {
		observability.ProviderErrorsTotal.WithLabelValues(string(client.CategorizeError(err))).Inc()
		return models.OutlookResponse{}, mapProviderError(err)
	}

	daily, skipped := aggregateWindow(win, obs)
	if len(daily) == 0 {
		return models.OutlookResponse{}, outlookerr.Newf(outlookerr.KindInsufficientData,
			"no usable observation days between %s and %s",
			win.Start.Format(validation.DateLayout), win.End.Format(validation.DateLayout))
	}

	summaries, err := summarizeDaily(daily)
	if err != nil {
		return models.OutlookResponse{}, err
	}
	probabilities := exceedances(daily, summaries, s.opts.Thresholds)

	labels, usedFallback := risk.Classify(risk.Inputs{
		Summaries:   summaries,
		Exceedances: probabilities,
		Units:       req.Units,
	}, s.opts.Thresholds)

	usesExtrapolation := usedFallback || len(daily) < s.opts.Thresholds.MinSampleForEmpirical

	resp := models.OutlookResponse{
		Metadata: models.OutlookMetadata{
			Lat:                 req.Lat,
			Lon:                 req.Lon,
			TargetDate:          req.TargetDate,
			WindowDays:          req.WindowDays,
			Units:               models.UnitsMetric,
			WindowStart:         win.Start.Format(validation.DateLayout),
			WindowEnd:           win.End.Format(validation.DateLayout),
			UsesHistoricalYears: win.UsesHistoricalYears,
			UsesExtrapolation:   usesExtrapolation,
			SampledDays:         len(daily),
			SkippedDays:         skipped,
			GeneratedAt:         s.opts.Clock().UTC(),
		},
		Summary:       orderedSummaries(summaries),
		Probabilities: orderedExceedances(probabilities),
		RiskLabels:    labels,
	}
	units.ConvertResponse(&resp, req.Units)

	observability.OutlooksComputedTotal.Inc()
	observability.RecordRiskLabels(labels)
	if usesExtrapolation {
		observability.OutlookExtrapolationsTotal.Inc()
	}

	if s.logger != nil {
		s.logger.Info("outlook computed",
			zap.Float64("lat", req.Lat),
			zap.Float64("lon", req.Lon),
			zap.String("targetDate", req.TargetDate),
			zap.Int("windowDays", req.WindowDays),
			zap.Int("sampledDays", len(daily)),
			zap.Int("skippedDays", skipped),
			zap.Bool("usesHistoricalYears", win.UsesHistoricalYears),
			zap.Bool("usesExtrapolation", usesExtrapolation),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return resp, nil
}

// aggregateWindow groups raw observations by local calendar day and reduces
// each day in the window. Days with no usable observations are skipped and
// counted, never fabricated.
func aggregateWindow(win window.Window, obs client.Observations) (daily []models.DailyMetrics, skipped int) {
	byDay := make(map[string][]models.RawObservation)
	for _, o := range obs.Raw {
		d := o.Timestamp.Format(validation.DateLayout)
		byDay[d] = append(byDay[d], o)
	}

	for day := win.Start; !day.After(win.End); day = day.AddDate(0, 0, 1) {
		ds := day.Format(validation.DateLayout)
		var sun *models.SunWindow
		if sw, ok := obs.Sun[ds]; ok {
			sunCopy := sw
			sun = &sunCopy
		}
		m, err := aggregate.AggregateDay(day, byDay[ds], sun)
		if err != nil {
			skipped++
			continue
		}
		daily = append(daily, m)
	}
	return daily, skipped
}

// summaryOrder fixes the response ordering of summaries and probabilities
// so responses are deterministic and diffable.
var summaryOrder = []string{
	models.VarTempMean,
	models.VarTempMax,
	models.VarTempMin,
	models.VarPrecip,
	models.VarWind,
	models.VarWindGusts,
	models.VarHumidity,
	models.VarCloud,
	models.VarUVIndex,
	models.VarHeatIndex,
}

// summarizeDaily builds the per-variable series from the daily metrics and
// summarizes each. The heat index is a derived series computed from each
// day's max temperature and mean humidity.
func summarizeDaily(daily []models.DailyMetrics) (map[string]models.VariableSummary, error) {
	n := len(daily)
	series := map[string]struct {
		unit   string
		values []float64
	}{
		models.VarTempMean:  {units.Celsius, make([]float64, 0, n)},
		models.VarTempMax:   {units.Celsius, make([]float64, 0, n)},
		models.VarTempMin:   {units.Celsius, make([]float64, 0, n)},
		models.VarPrecip:    {units.Millimeter, make([]float64, 0, n)},
		models.VarWind:      {units.KMH, make([]float64, 0, n)},
		models.VarWindGusts: {units.KMH, make([]float64, 0, n)},
		models.VarHumidity:  {units.Percent, make([]float64, 0, n)},
		models.VarCloud:     {units.Percent, make([]float64, 0, n)},
		models.VarUVIndex:   {units.Index, make([]float64, 0, n)},
		models.VarHeatIndex: {units.Celsius, make([]float64, 0, n)},
	}

	appendTo := func(name string, v float64) {
		e := series[name]
		e.values = append(e.values, v)
		series[name] = e
	}
	for _, d := range daily {
		appendTo(models.VarTempMean, d.DayMeanTemp)
		appendTo(models.VarTempMax, d.TempMax)
		appendTo(models.VarTempMin, d.TempMin)
		appendTo(models.VarPrecip, d.PrecipitationSum)
		appendTo(models.VarWind, d.WindSpeedMean)
		appendTo(models.VarWindGusts, d.WindGustsMax)
		appendTo(models.VarHumidity, d.HumidityMean)
		appendTo(models.VarCloud, d.CloudCoverMean)
		appendTo(models.VarUVIndex, d.UVIndexMax)
		appendTo(models.VarHeatIndex, risk.HeatIndex(d.TempMax, d.HumidityMean))
	}

	out := make(map[string]models.VariableSummary, len(series))
	for name, e := range series {
		sum, err := stats.Summarize(name, e.unit, e.values)
		if err != nil {
			return nil, err
		}
		out[name] = sum
	}
	return out, nil
}

// exceedances computes the empirical crossing probabilities the classifier
// consumes. The cold threshold uses the strict complement form (share of
// days with min above the cold base); the classifier inverts it. The wind
// threshold is the window's own 75th gust percentile, so "windy" is always
// relative to local climate rather than a fixed speed.
func exceedances(daily []models.DailyMetrics, summaries map[string]models.VariableSummary, th risk.Thresholds) map[string]models.ExceedanceProbability {
	n := len(daily)
	tmax := make([]float64, 0, n)
	tmin := make([]float64, 0, n)
	gusts := make([]float64, 0, n)
	precip := make([]float64, 0, n)
	heat := make([]float64, 0, n)
	for _, d := range daily {
		tmax = append(tmax, d.TempMax)
		tmin = append(tmin, d.TempMin)
		gusts = append(gusts, d.WindGustsMax)
		precip = append(precip, d.PrecipitationSum)
		heat = append(heat, risk.HeatIndex(d.TempMax, d.HumidityMean))
	}

	out := make(map[string]models.ExceedanceProbability, 5)
	add := func(metric string, threshold float64, comparator string, values []float64) {
		ex, err := stats.Exceedance(metric, threshold, comparator, values)
		if err != nil {
			return
		}
		out[metric] = ex
	}

	add(models.VarTempMax, th.HeatBaseC, stats.CompGTE, tmax)
	add(models.VarTempMin, th.ColdBaseC, stats.CompGT, tmin)
	if gs, ok := summaries[models.VarWindGusts]; ok {
		add(models.VarWindGusts, gs.P75, stats.CompGT, gusts)
	}
	add(models.VarPrecip, th.WetDailyMM, stats.CompGTE, precip)
	add(models.VarHeatIndex, th.DiscomfortHeatC, stats.CompGTE, heat)
	return out
}

func orderedSummaries(m map[string]models.VariableSummary) []models.VariableSummary {
	out := make([]models.VariableSummary, 0, len(m))
	for _, name := range summaryOrder {
		if s, ok := m[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

func orderedExceedances(m map[string]models.ExceedanceProbability) []models.ExceedanceProbability {
	out := make([]models.ExceedanceProbability, 0, len(m))
	for _, name := range summaryOrder {
		if ex, ok := m[name]; ok {
			out = append(out, ex)
		}
	}
	return out
}

// mapProviderError folds the client's sentinel errors into the outlook
// error taxonomy so the HTTP layer can map them to status codes.
func mapProviderError(err error) error {
	switch {
	case errors.Is(err, client.ErrOutOfRange):
		return outlookerr.Wrap(outlookerr.KindDataUnavailable, "requested window outside provider coverage", err)
	case errors.Is(err, client.ErrInvalidRequest):
		return outlookerr.Wrap(outlookerr.KindInvalidParameter, "provider rejected request parameters", err)
	default:
		return outlookerr.Wrap(outlookerr.KindUpstreamData, "fetch observations", err)
	}
}

func (s *OutlookService) cacheGet(ctx context.Context, key cache.Key) (models.OutlookResponse, bool) {
	if s.cache == nil {
		return models.OutlookResponse{}, false
	}
	start := time.Now()
	resp, ok, err := s.cache.Get(ctx, key)
	duration := time.Since(start).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", string(client.CategorizeError(err))).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(duration)
		if s.logger != nil {
			s.logger.Warn("outlook cache read failed", zap.Error(err), zap.String("key", key.String()))
		}
		return models.OutlookResponse{}, false
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(duration)
	if ok {
		observability.CacheHitsTotal.WithLabelValues(s.opts.CacheType).Inc()
	}
	return resp, ok
}

func (s *OutlookService) cacheSet(ctx context.Context, key cache.Key, resp models.OutlookResponse) {
	if s.cache == nil {
		return
	}
	start := time.Now()
	err := s.cache.Set(ctx, key, resp, s.opts.CacheTTL)
	duration := time.Since(start).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", string(client.CategorizeError(err))).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(duration)
		if s.logger != nil {
			s.logger.Warn("outlook cache write failed", zap.Error(err), zap.String("key", key.String()))
		}
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(duration)
}
