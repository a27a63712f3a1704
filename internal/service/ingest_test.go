package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"prism/internal/config"
	"prism/internal/domain"
	"prism/internal/service/mocks"
)

type IngestServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	source    *mocks.MockSource
	extractor *mocks.MockExtractor
	articles  *mocks.MockArticleStore
	iocs      *mocks.MockIOCStore
	tags      *mocks.MockTagStore
	states    *mocks.MockSourceStateStore
	txManager *mocks.MockTransactionManager
	publisher *mocks.MockPublisher

	cfg    *config.Config
	logger *slog.Logger
	now    time.Time
}

func (s *IngestServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.source = mocks.NewMockSource(s.ctrl)
	s.extractor = mocks.NewMockExtractor(s.ctrl)
	s.articles = mocks.NewMockArticleStore(s.ctrl)
	s.iocs = mocks.NewMockIOCStore(s.ctrl)
	s.tags = mocks.NewMockTagStore(s.ctrl)
	s.states = mocks.NewMockSourceStateStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.cfg = &config.Config{
		Ingest: config.IngestConfig{Concurrency: 1},
		Fetch:  config.FetchConfig{SourceTimeout: time.Minute},
		Sources: []config.SourceConfig{
			{Name: "alpha", Type: config.SourceRSS, URL: "https://alpha.test", FeedURL: "https://alpha.test/feed"},
		},
	}
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.now = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	).AnyTimes()
}

func (s *IngestServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestIngestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(IngestServiceTestSuite))
}

func (s *IngestServiceTestSuite) newService(publisher Publisher) *IngestService {
	svc := NewIngestService(
		s.source,
		s.extractor,
		s.articles,
		s.iocs,
		s.tags,
		s.states,
		s.txManager,
		publisher,
		s.logger,
		s.cfg,
	)
	svc.now = func() time.Time { return s.now }
	return svc
}

func (s *IngestServiceTestSuite) expectState(source string) *domain.SourceState {
	recorded := &domain.SourceState{}
	s.states.EXPECT().Get(gomock.Any(), source).Return(&domain.SourceState{Source: source, TotalIngested: 4}, nil)
	s.states.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, state *domain.SourceState) error {
			*recorded = *state
			return nil
		},
	)
	return recorded
}

func raw(source, url, content string, tags ...string) domain.RawArticle {
	return domain.RawArticle{SourceName: source, Title: "title " + url, URL: url, Content: content, Tags: tags}
}

func (s *IngestServiceTestSuite) TestRun_NewArticles() {
	ctx := context.Background()
	src := s.cfg.Sources[0]
	iocs := []domain.IOC{{Type: domain.IOCIP, Value: "185.220.101.1", Context: "c2 at 185.220.101.1"}}

	s.source.EXPECT().Fetch(gomock.Any(), src).Return(&domain.FetchResult{
		Articles: []domain.RawArticle{
			raw("alpha", "https://alpha.test/1", "c2 at 185[.]220[.]101[.]1", "malware"),
			raw("alpha", "https://alpha.test/2", "nothing here"),
		},
	}, nil)
	s.articles.EXPECT().ExistingURLs(gomock.Any(), "alpha", []string{"https://alpha.test/1", "https://alpha.test/2"}).
		Return(map[string]struct{}{}, nil)

	s.extractor.EXPECT().Extract("c2 at 185[.]220[.]101[.]1").Return(iocs)
	s.extractor.EXPECT().Extract("nothing here").Return(nil)

	s.articles.EXPECT().InsertIfAbsent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, a *domain.Article) (int64, error) {
			s.Equal("alpha", a.Source)
			s.Equal(s.now, a.ScrapedAt)
			s.Nil(a.Summary)
			s.Nil(a.AnalyzedAt)
			a.ID = 10
			return 10, nil
		},
	)
	s.articles.EXPECT().InsertIfAbsent(gomock.Any(), gomock.Any()).Return(int64(11), nil)
	s.iocs.EXPECT().InsertBatch(gomock.Any(), int64(10), iocs).Return(nil)
	s.tags.EXPECT().InsertBatch(gomock.Any(), int64(10), []string{"malware"}).Return(nil)

	var events []*domain.ArticleEvent
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e *domain.ArticleEvent) error {
			events = append(events, e)
			return nil
		},
	).Times(2)

	state := s.expectState("alpha")

	summary, err := s.newService(s.publisher).Run(ctx)

	s.NoError(err)
	s.Require().Len(summary.Sources, 1)
	r := summary.Sources[0]
	s.Equal(2, r.Fetched)
	s.Equal(2, r.New)
	s.Equal(0, r.Skipped)
	s.Equal(1, r.IOCs)
	s.Equal(2, r.Published)
	s.False(r.Failed())

	s.Require().Len(events, 2)
	s.Equal(domain.EventIngested, events[0].Action)
	s.Equal(summary.RunID.String(), events[0].RunID)
	s.Equal(1, events[0].IOCCount)
	s.Equal([]string{"malware"}, events[0].Tags)

	s.Equal(domain.SourceStatusOK, state.LastStatus)
	s.Nil(state.LastError)
	s.Equal(int64(6), state.TotalIngested)
	s.Equal(s.now, state.LastRunAt)
}

func (s *IngestServiceTestSuite) TestRun_SkipsExistingWithoutExtraction() {
	src := s.cfg.Sources[0]

	s.source.EXPECT().Fetch(gomock.Any(), src).Return(&domain.FetchResult{
		Articles: []domain.RawArticle{raw("alpha", "https://alpha.test/1", "seen")},
	}, nil)
	s.articles.EXPECT().ExistingURLs(gomock.Any(), "alpha", []string{"https://alpha.test/1"}).
		Return(map[string]struct{}{"https://alpha.test/1": {}}, nil)
	s.expectState("alpha")

	summary, err := s.newService(nil).Run(context.Background())

	s.NoError(err)
	s.Equal(1, summary.Sources[0].Skipped)
	s.Equal(0, summary.Sources[0].New)
	s.Equal(1, summary.TotalSkipped())
}

func (s *IngestServiceTestSuite) TestRun_RepeatedLinkInOneFetchIsCollapsed() {
	src := s.cfg.Sources[0]

	s.source.EXPECT().Fetch(gomock.Any(), src).Return(&domain.FetchResult{
		Articles: []domain.RawArticle{
			raw("alpha", "https://alpha.test/1", "first"),
			raw("alpha", "https://alpha.test/1", "second"),
		},
	}, nil)
	s.articles.EXPECT().ExistingURLs(gomock.Any(), "alpha", []string{"https://alpha.test/1"}).
		Return(map[string]struct{}{}, nil)
	s.extractor.EXPECT().Extract("first").Return(nil)
	s.articles.EXPECT().InsertIfAbsent(gomock.Any(), gomock.Any()).Return(int64(1), nil)
	s.expectState("alpha")

	summary, err := s.newService(nil).Run(context.Background())

	s.NoError(err)
	s.Equal(1, summary.Sources[0].Fetched)
	s.Equal(1, summary.Sources[0].New)
}

func (s *IngestServiceTestSuite) TestRun_LostInsertRaceCountsAsSkip() {
	src := s.cfg.Sources[0]

	s.source.EXPECT().Fetch(gomock.Any(), src).Return(&domain.FetchResult{
		Articles: []domain.RawArticle{raw("alpha", "https://alpha.test/1", "body")},
	}, nil)
	s.articles.EXPECT().ExistingURLs(gomock.Any(), "alpha", gomock.Any()).Return(map[string]struct{}{}, nil)
	s.extractor.EXPECT().Extract("body").Return([]domain.IOC{{Type: domain.IOCCVE, Value: "CVE-2024-3400"}})
	s.articles.EXPECT().InsertIfAbsent(gomock.Any(), gomock.Any()).Return(int64(0), domain.ErrDuplicate)
	s.expectState("alpha")

	summary, err := s.newService(s.publisher).Run(context.Background())

	s.NoError(err)
	s.Equal(1, summary.Sources[0].Skipped)
	s.Equal(0, summary.Sources[0].New)
	s.Equal(0, summary.Sources[0].StoreErrors)
}

func (s *IngestServiceTestSuite) TestRun_StoreErrorContinuesWithNextArticle() {
	src := s.cfg.Sources[0]

	s.source.EXPECT().Fetch(gomock.Any(), src).Return(&domain.FetchResult{
		Articles: []domain.RawArticle{
			raw("alpha", "https://alpha.test/1", "one"),
			raw("alpha", "https://alpha.test/2", "two"),
		},
	}, nil)
	s.articles.EXPECT().ExistingURLs(gomock.Any(), "alpha", gomock.Any()).Return(map[string]struct{}{}, nil)

	iocs := []domain.IOC{{Type: domain.IOCDomain, Value: "bad.test"}}
	s.extractor.EXPECT().Extract("one").Return(iocs)
	s.extractor.EXPECT().Extract("two").Return(nil)
	gomock.InOrder(
		s.articles.EXPECT().InsertIfAbsent(gomock.Any(), gomock.Any()).Return(int64(1), nil),
		s.articles.EXPECT().InsertIfAbsent(gomock.Any(), gomock.Any()).Return(int64(2), nil),
	)
	s.iocs.EXPECT().InsertBatch(gomock.Any(), int64(1), iocs).Return(errors.New("disk full"))
	state := s.expectState("alpha")

	summary, err := s.newService(nil).Run(context.Background())

	s.NoError(err)
	r := summary.Sources[0]
	s.Equal(1, r.StoreErrors)
	s.Equal(1, r.New)
	s.False(r.Failed())
	s.Equal(int64(5), state.TotalIngested)
}

func (s *IngestServiceTestSuite) TestRun_PartialFailureIsolation() {
	s.cfg.Sources = []config.SourceConfig{
		{Name: "alpha", Type: config.SourceRSS, FeedURL: "https://alpha.test/feed"},
		{Name: "broken", Type: config.SourceRSS, FeedURL: "https://broken.test/feed"},
		{Name: "gamma", Type: config.SourceWeb, URL: "https://gamma.test", ArticleSelector: "a", ContentSelector: "p"},
	}
	fetchErr := errors.New("503 after 3 attempts")

	s.source.EXPECT().Fetch(gomock.Any(), s.cfg.Sources[0]).Return(&domain.FetchResult{
		Articles: []domain.RawArticle{raw("alpha", "https://alpha.test/1", "a")},
	}, nil)
	s.source.EXPECT().Fetch(gomock.Any(), s.cfg.Sources[1]).Return(nil, fetchErr)
	s.source.EXPECT().Fetch(gomock.Any(), s.cfg.Sources[2]).Return(&domain.FetchResult{
		Articles: []domain.RawArticle{raw("gamma", "https://gamma.test/1", "g")},
	}, nil)

	s.articles.EXPECT().ExistingURLs(gomock.Any(), gomock.Any(), gomock.Any()).Return(map[string]struct{}{}, nil).Times(2)
	s.extractor.EXPECT().Extract(gomock.Any()).Return(nil).Times(2)
	s.articles.EXPECT().InsertIfAbsent(gomock.Any(), gomock.Any()).Return(int64(1), nil).Times(2)

	s.expectState("alpha")
	brokenState := s.expectState("broken")
	s.expectState("gamma")

	summary, err := s.newService(nil).Run(context.Background())

	s.NoError(err)
	s.Require().Len(summary.Sources, 3)
	s.Equal([]string{"alpha", "broken", "gamma"}, []string{summary.Sources[0].Source, summary.Sources[1].Source, summary.Sources[2].Source})
	s.Equal(2, summary.Succeeded())
	s.Equal(2, summary.TotalNew())
	s.False(summary.AllFailed())

	failed := summary.FailedSources()
	s.Require().Len(failed, 1)
	s.Equal("broken", failed[0].Source)

	var fetchError *domain.SourceFetchError
	s.Require().ErrorAs(failed[0].Err, &fetchError)
	s.Equal("broken", fetchError.Source)
	s.ErrorIs(failed[0].Err, fetchErr)

	s.Equal(domain.SourceStatusFailed, brokenState.LastStatus)
	s.Require().NotNil(brokenState.LastError)
	s.Contains(*brokenState.LastError, "503")
	s.Equal(int64(4), brokenState.TotalIngested)
}

func (s *IngestServiceTestSuite) TestRun_SelectorMissIsWarningNotFailure() {
	s.cfg.Sources = []config.SourceConfig{
		{Name: "web", Type: config.SourceWeb, URL: "https://web.test", ArticleSelector: "div.none a", ContentSelector: "p"},
	}
	s.source.EXPECT().Fetch(gomock.Any(), s.cfg.Sources[0]).Return(&domain.FetchResult{
		Warnings: []string{domain.ErrSelectorMiss.Error() + `: article_selector "div.none a"`},
	}, nil)
	s.articles.EXPECT().ExistingURLs(gomock.Any(), "web", []string{}).Return(map[string]struct{}{}, nil)
	s.expectState("web")

	summary, err := s.newService(nil).Run(context.Background())

	s.NoError(err)
	s.Empty(summary.FailedSources())
	s.Equal(0, summary.Sources[0].Fetched)
	s.Len(summary.Sources[0].Warnings, 1)
	s.Contains(summary.Sources[0].Warnings[0], "selector matched nothing")
}

func (s *IngestServiceTestSuite) TestRun_AllSourcesFailed() {
	s.source.EXPECT().Fetch(gomock.Any(), s.cfg.Sources[0]).Return(nil, errors.New("dial tcp: connection refused"))
	s.expectState("alpha")

	summary, err := s.newService(nil).Run(context.Background())

	s.NoError(err)
	s.True(summary.AllFailed())
}

func (s *IngestServiceTestSuite) TestRun_ExistenceCheckFailureFailsSource() {
	s.source.EXPECT().Fetch(gomock.Any(), s.cfg.Sources[0]).Return(&domain.FetchResult{
		Articles: []domain.RawArticle{raw("alpha", "https://alpha.test/1", "a")},
	}, nil)
	s.articles.EXPECT().ExistingURLs(gomock.Any(), "alpha", gomock.Any()).Return(nil, errors.New("database is locked"))
	s.expectState("alpha")

	summary, err := s.newService(nil).Run(context.Background())

	s.NoError(err)
	s.True(summary.Sources[0].Failed())
	s.Equal(0, summary.Sources[0].New)
}

func (s *IngestServiceTestSuite) TestRun_PublishFailureIsNotFatal() {
	s.source.EXPECT().Fetch(gomock.Any(), s.cfg.Sources[0]).Return(&domain.FetchResult{
		Articles: []domain.RawArticle{raw("alpha", "https://alpha.test/1", "a")},
	}, nil)
	s.articles.EXPECT().ExistingURLs(gomock.Any(), "alpha", gomock.Any()).Return(map[string]struct{}{}, nil)
	s.extractor.EXPECT().Extract("a").Return(nil)
	s.articles.EXPECT().InsertIfAbsent(gomock.Any(), gomock.Any()).Return(int64(1), nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("channel closed"))
	s.expectState("alpha")

	summary, err := s.newService(s.publisher).Run(context.Background())

	s.NoError(err)
	s.Equal(1, summary.Sources[0].New)
	s.Equal(0, summary.Sources[0].Published)
}

func (s *IngestServiceTestSuite) TestRun_SourceStateFailureIsIgnored() {
	s.source.EXPECT().Fetch(gomock.Any(), s.cfg.Sources[0]).Return(&domain.FetchResult{}, nil)
	s.articles.EXPECT().ExistingURLs(gomock.Any(), "alpha", gomock.Any()).Return(map[string]struct{}{}, nil)
	s.states.EXPECT().Get(gomock.Any(), "alpha").Return(nil, errors.New("no such table"))

	summary, err := s.newService(nil).Run(context.Background())

	s.NoError(err)
	s.False(summary.Sources[0].Failed())
}

func (s *IngestServiceTestSuite) TestRun_CancelledStopsIssuingFetches() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := s.newService(nil).Run(ctx)

	s.ErrorIs(err, context.Canceled)
	s.Empty(summary.Sources)
}

func (s *IngestServiceTestSuite) TestRun_CancelMidSourceFinishesCurrentWrite() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.source.EXPECT().Fetch(gomock.Any(), s.cfg.Sources[0]).Return(&domain.FetchResult{
		Articles: []domain.RawArticle{
			raw("alpha", "https://alpha.test/1", "one"),
			raw("alpha", "https://alpha.test/2", "two"),
		},
	}, nil)
	s.articles.EXPECT().ExistingURLs(gomock.Any(), "alpha", gomock.Any()).Return(map[string]struct{}{}, nil)

	iocs := []domain.IOC{{Type: domain.IOCIP, Value: "45.61.136.7"}}
	s.extractor.EXPECT().Extract("one").Return(iocs)
	s.articles.EXPECT().InsertIfAbsent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(txCtx context.Context, _ *domain.Article) (int64, error) {
			cancel()
			s.NoError(txCtx.Err(), "the article transaction must not observe the run abort")
			return 1, nil
		},
	)
	s.iocs.EXPECT().InsertBatch(gomock.Any(), int64(1), iocs).Return(nil)
	s.expectState("alpha")

	summary, err := s.newService(nil).Run(ctx)

	s.ErrorIs(err, context.Canceled)
	s.Equal(1, summary.Sources[0].New)
	s.Equal(1, summary.Sources[0].IOCs)
}

func (s *IngestServiceTestSuite) TestRun_SourceTimeoutBoundsFetch() {
	s.cfg.Fetch.SourceTimeout = 20 * time.Millisecond

	s.source.EXPECT().Fetch(gomock.Any(), s.cfg.Sources[0]).DoAndReturn(
		func(ctx context.Context, _ config.SourceConfig) (*domain.FetchResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	)
	s.expectState("alpha")

	summary, err := s.newService(nil).Run(context.Background())

	s.NoError(err)
	s.True(summary.Sources[0].Failed())
	s.ErrorIs(summary.Sources[0].Err, context.DeadlineExceeded)
}

func (s *IngestServiceTestSuite) TestRun_ConcurrentSourcesKeepConfigOrder() {
	s.cfg.Ingest.Concurrency = 3
	s.cfg.Sources = []config.SourceConfig{
		{Name: "slow", Type: config.SourceRSS, FeedURL: "https://slow.test/feed"},
		{Name: "fast", Type: config.SourceRSS, FeedURL: "https://fast.test/feed"},
		{Name: "failing", Type: config.SourceRSS, FeedURL: "https://failing.test/feed"},
	}

	s.source.EXPECT().Fetch(gomock.Any(), s.cfg.Sources[0]).DoAndReturn(
		func(context.Context, config.SourceConfig) (*domain.FetchResult, error) {
			time.Sleep(30 * time.Millisecond)
			return &domain.FetchResult{}, nil
		},
	)
	s.source.EXPECT().Fetch(gomock.Any(), s.cfg.Sources[1]).Return(&domain.FetchResult{}, nil)
	s.source.EXPECT().Fetch(gomock.Any(), s.cfg.Sources[2]).Return(nil, errors.New("timeout"))
	s.articles.EXPECT().ExistingURLs(gomock.Any(), gomock.Any(), gomock.Any()).Return(map[string]struct{}{}, nil).Times(2)
	s.states.EXPECT().Get(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, source string) (*domain.SourceState, error) {
			return &domain.SourceState{Source: source}, nil
		},
	).Times(3)
	s.states.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	summary, err := s.newService(nil).Run(context.Background())

	s.NoError(err)
	s.Require().Len(summary.Sources, 3)
	s.Equal("slow", summary.Sources[0].Source)
	s.Equal("fast", summary.Sources[1].Source)
	s.Equal("failing", summary.Sources[2].Source)
	s.True(summary.Sources[2].Failed())
}
