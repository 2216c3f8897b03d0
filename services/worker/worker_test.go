package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/grader"
	"github.com/speaknowly/speaknowly-api/services/ledger"
	"github.com/speaknowly/speaknowly-api/services/media"
	"github.com/speaknowly/speaknowly-api/services/pricing"
	"github.com/speaknowly/speaknowly-api/services/queue"
	"github.com/speaknowly/speaknowly-api/services/session"
	"github.com/speaknowly/speaknowly-api/testutil"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memQueue struct {
	mu      sync.Mutex
	ready   []*queue.Job
	acked   []string
	retries []time.Duration
	dead    []*queue.Job
	next    int
}

func (q *memQueue) Enqueue(ctx context.Context, kind model.TestKind, id uint) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.next++
	job := &queue.Job{ID: "job-" + string(rune('a'+q.next)), Kind: kind, SessionID: id, Attempt: 1}
	q.ready = append(q.ready, job)
	return job, nil
}

func (q *memQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ready) == 0 {
		return nil, nil
	}
	job := q.ready[0]
	q.ready = q.ready[1:]
	return job, nil
}

func (q *memQueue) Ack(ctx context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, job.ID)
	return nil
}

func (q *memQueue) Retry(ctx context.Context, job *queue.Job, delay time.Duration, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	job.LastError = cause.Error()
	q.retries = append(q.retries, delay)
	q.ready = append(q.ready, job)
	return nil
}

func (q *memQueue) DeadLetter(ctx context.Context, job *queue.Job, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.LastError = cause.Error()
	q.dead = append(q.dead, job)
	return nil
}

type fakeGrader struct {
	mu           sync.Mutex
	speakingErrs []error
	speakingIn   []grader.SpeakingInput
	listening    *grader.ListeningReview
	listeningErr error
	writingErr   error
	transcribed  [][]byte
	langs        []string
}

func (g *fakeGrader) sawLang(lang string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.langs = append(g.langs, lang)
}

func (g *fakeGrader) TranscribeAudio(ctx context.Context, audio []byte, mimeType, lang string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transcribed = append(g.transcribed, audio)
	g.langs = append(g.langs, lang)
	return "transcribed " + mimeType, nil
}

func (g *fakeGrader) GradeWriting(ctx context.Context, in grader.WritingInput, lang string) (*grader.WritingGrade, error) {
	g.sawLang(lang)
	if g.writingErr != nil {
		return nil, g.writingErr
	}
	c := grader.Criterion{Score: 6, Feedback: "ok"}
	return &grader.WritingGrade{
		TaskAchievement: c, LexicalResource: c, CoherenceAndCohesion: c, GrammaticalRange: c, WordCount: c,
		OverallBandScore: 6,
	}, nil
}

func (g *fakeGrader) GradeSpeaking(ctx context.Context, in grader.SpeakingInput, lang string) (*grader.SpeakingGrade, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.speakingIn = append(g.speakingIn, in)
	g.langs = append(g.langs, lang)
	if len(g.speakingErrs) > 0 {
		err := g.speakingErrs[0]
		g.speakingErrs = g.speakingErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	c := grader.Criterion{Score: 6.5, Feedback: "clear"}
	return &grader.SpeakingGrade{
		FluencyAndCoherence: c, LexicalResource: c, GrammaticalRange: c, Pronunciation: c,
		OverallBandScore: 6.5,
	}, nil
}

func (g *fakeGrader) GradeListening(ctx context.Context, answers, correct map[int][]string, lang string) (*grader.ListeningReview, error) {
	g.sawLang(lang)
	if g.listeningErr != nil {
		return nil, g.listeningErr
	}
	return g.listening, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	ready  []uint
	failed []uint
	ops    []string
}

func (n *fakeNotifier) AnalysisReady(ctx context.Context, userID uint, kind model.TestKind, sessionID uint, score float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ready = append(n.ready, sessionID)
	return nil
}

func (n *fakeNotifier) AnalysisFailed(ctx context.Context, userID uint, kind model.TestKind, sessionID uint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, sessionID)
	return nil
}

func (n *fakeNotifier) NotifyOps(ctx context.Context, source, title, message string, metadata interface{}) (*model.OpsNotification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ops = append(n.ops, title)
	return &model.OpsNotification{Source: source, Title: title}, nil
}

type fixture struct {
	db       *gorm.DB
	queue    *memQueue
	grader   *fakeGrader
	notifier *fakeNotifier
	store    *media.LocalStore
	worker   *Worker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	store, err := media.NewLocalStore(t.TempDir(), "http://media.test")
	require.NoError(t, err)

	f := &fixture{db: db, queue: &memQueue{}, grader: &fakeGrader{}, notifier: &fakeNotifier{}, store: store}
	f.worker = New(db, f.queue, f.grader, store, f.notifier, nil, DefaultConfig())
	return f
}

func completedSpeaking(t *testing.T, db *gorm.DB, userID uint, answers map[int]model.SpeakingAnswer) *model.Speaking {
	t.Helper()
	start := time.Now().UTC().Add(-20 * time.Minute)
	end := start.Add(12 * time.Minute)
	s := model.Speaking{UserID: userID, Status: model.SessionStatusCompleted, StartTime: start, EndTime: &end}
	require.NoError(t, db.Create(&s).Error)
	for part := 1; part <= 3; part++ {
		q := model.SpeakingQuestion{SpeakingID: s.ID, Part: part, Title: "T", Content: "C"}
		require.NoError(t, db.Create(&q).Error)
		if a, ok := answers[part]; ok {
			a.SpeakingID = s.ID
			a.QuestionID = q.ID
			require.NoError(t, db.Create(&a).Error)
		}
	}
	return &s
}

func drain(t *testing.T, w *Worker) {
	t.Helper()
	for i := 0; i < 20; i++ {
		processed, err := w.ProcessNext(context.Background())
		require.NoError(t, err)
		if !processed {
			return
		}
	}
	t.Fatal("queue did not drain")
}

func TestTransientGraderFailuresAreRetried(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewUser(t, f.db, 0)
	s := completedSpeaking(t, f.db, user.ID, map[int]model.SpeakingAnswer{
		1: {TextAnswer: "I live in a flat."},
		2: {TextAnswer: "My last trip was to Samarkand."},
		3: {TextAnswer: "People travel to learn."},
	})
	upstream := apperr.Upstream("grade_speaking failed", errors.New("503"))
	f.grader.speakingErrs = []error{upstream, upstream, nil}

	_, err := f.queue.Enqueue(context.Background(), model.TestKindSpeaking, s.ID)
	require.NoError(t, err)
	drain(t, f.worker)

	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, f.queue.retries)
	assert.Len(t, f.queue.acked, 1)
	assert.Empty(t, f.queue.dead)

	var rows []model.SpeakingAnalyse
	require.NoError(t, f.db.Where("speaking_id = ?", s.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 6.5, rows[0].OverallBandScore)
	assert.Equal(t, 1, rows[0].AnalysisVersion)
	assert.Equal(t, 720, rows[0].DurationSeconds)
	assert.Equal(t, []uint{s.ID}, f.notifier.ready)

	require.Len(t, f.grader.speakingIn, 3)
	assert.Equal(t, "My last trip was to Samarkand.", f.grader.speakingIn[2].Answers[1])
}

func TestRedeliveryOverwritesAndBumpsVersion(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewUser(t, f.db, 0)
	s := completedSpeaking(t, f.db, user.ID, map[int]model.SpeakingAnswer{1: {TextAnswer: "hello"}})

	first, err := f.worker.Analyze(context.Background(), model.TestKindSpeaking, s.ID, false)
	require.NoError(t, err)
	second, err := f.worker.Analyze(context.Background(), model.TestKindSpeaking, s.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)

	var count int64
	require.NoError(t, f.db.Model(&model.SpeakingAnalyse{}).Where("speaking_id = ?", s.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRecordingsAreTranscribed(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewUser(t, f.db, 0)
	key := media.AudioKey(1, 1, "mp3")
	_, err := f.store.Put(context.Background(), key, []byte("ID3"), "audio/mpeg")
	require.NoError(t, err)

	s := completedSpeaking(t, f.db, user.ID, map[int]model.SpeakingAnswer{
		1: {AudioURI: key},
		2: {AudioURI: "audio/2_1_missing.webm"},
	})
	res, err := f.worker.Analyze(context.Background(), model.TestKindSpeaking, s.ID, false)
	require.NoError(t, err)
	require.NotNil(t, res)

	require.Len(t, f.grader.transcribed, 1)
	assert.Equal(t, []byte("ID3"), f.grader.transcribed[0])
	in := f.grader.speakingIn[0]
	assert.Equal(t, "transcribed audio/mpeg", in.Answers[0])
	assert.Empty(t, in.Answers[1])

	var row model.SpeakingAnalyse
	require.NoError(t, f.db.Where("speaking_id = ?", s.ID).First(&row).Error)
	assert.JSONEq(t, `{"1":"transcribed audio/mpeg","2":""}`, string(row.Transcripts))
}

func TestDeadLetterAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewUser(t, f.db, 0)
	start := time.Now().UTC().Add(-time.Hour)
	end := start.Add(time.Hour)
	writing := model.Writing{
		UserID: user.ID, Status: model.SessionStatusCompleted, StartTime: start, EndTime: &end,
		Part1: &model.WritingPart1{Question: "Describe", Answer: "The chart shows"},
		Part2: &model.WritingPart2{Question: "Discuss", Answer: "Some people"},
	}
	require.NoError(t, f.db.Create(&writing).Error)
	f.grader.writingErr = apperr.New(apperr.KindGraderOutputInvalid, "grade_writing returned invalid output")

	_, err := f.queue.Enqueue(context.Background(), model.TestKindWriting, writing.ID)
	require.NoError(t, err)
	drain(t, f.worker)

	assert.Len(t, f.queue.retries, 4)
	require.Len(t, f.queue.dead, 1)
	assert.Equal(t, 5, f.queue.dead[0].Attempt)

	var letters []model.AnalysisDeadLetter
	require.NoError(t, f.db.Find(&letters).Error)
	require.Len(t, letters, 1)
	assert.Equal(t, writing.ID, letters[0].SessionID)
	assert.Equal(t, 5, letters[0].Attempts)
	assert.Contains(t, letters[0].LastError, "invalid output")
	assert.Len(t, f.notifier.ops, 1)
	assert.Equal(t, []uint{writing.ID}, f.notifier.failed)

	var s model.Writing
	require.NoError(t, f.db.First(&s, writing.ID).Error)
	assert.Equal(t, model.SessionStatusCompleted, s.Status)

	f.grader.writingErr = nil
	job, err := f.worker.RequeueDeadLetter(context.Background(), letters[0].ID)
	require.NoError(t, err)
	assert.Equal(t, writing.ID, job.SessionID)
	_, err = f.worker.RequeueDeadLetter(context.Background(), letters[0].ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	drain(t, f.worker)
	var analyse model.WritingAnalyse
	require.NoError(t, f.db.Where("writing_id = ?", writing.ID).First(&analyse).Error)
	assert.Equal(t, 6.0, analyse.OverallBandScore)
}

func TestReconcileDoesNotRetryDeadLetters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.NewUser(t, f.db, 0)
	start := time.Now().UTC().Add(-time.Hour)
	end := start.Add(time.Hour - time.Minute)
	writing := model.Writing{
		UserID: user.ID, Status: model.SessionStatusCompleted, StartTime: start, EndTime: &end,
		Part1: &model.WritingPart1{Question: "Describe", Answer: "The chart shows"},
		Part2: &model.WritingPart2{Question: "Discuss", Answer: "Some people"},
	}
	require.NoError(t, f.db.Create(&writing).Error)
	f.grader.writingErr = apperr.New(apperr.KindGraderOutputInvalid, "grade_writing returned invalid output")

	orch := session.New(session.Deps{
		DB:      f.db,
		Ledger:  ledger.NewService(f.db),
		Pricing: pricing.NewService(f.db),
		Queue:   f.queue,
	})
	for cycle := 1; cycle <= 3; cycle++ {
		n, err := orch.ReconcileUnanalysed(ctx, 30*time.Second)
		require.NoError(t, err)
		if cycle == 1 {
			assert.Equal(t, 1, n)
		} else {
			assert.Zero(t, n, "cycle %d", cycle)
		}
		drain(t, f.worker)
	}

	var letters int64
	require.NoError(t, f.db.Model(&model.AnalysisDeadLetter{}).Count(&letters).Error)
	assert.EqualValues(t, 1, letters)
	assert.Len(t, f.queue.dead, 1)
	assert.Len(t, f.notifier.ops, 1)
	assert.Equal(t, []uint{writing.ID}, f.notifier.failed)
	assert.Len(t, f.grader.langs, 5)
}

func TestSessionLanguageReachesGrader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.NewUser(t, f.db, 0)

	start := time.Now().UTC().Add(-time.Hour)
	writing := model.Writing{
		UserID: user.ID, Status: model.SessionStatusCompleted, StartTime: start, EndTime: &start, Lang: "ru",
		Part1: &model.WritingPart1{Question: "Describe", Answer: "The chart shows"},
		Part2: &model.WritingPart2{Question: "Discuss", Answer: "Some people"},
	}
	require.NoError(t, f.db.Create(&writing).Error)
	_, err := f.worker.Analyze(ctx, model.TestKindWriting, writing.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"ru"}, f.grader.langs)

	key := media.AudioKey(1, 1, "mp3")
	_, err = f.store.Put(ctx, key, []byte("ID3"), "audio/mpeg")
	require.NoError(t, err)
	sp := completedSpeaking(t, f.db, user.ID, map[int]model.SpeakingAnswer{1: {AudioURI: key}})
	require.NoError(t, f.db.Model(sp).Update("lang", "uz").Error)
	f.grader.langs = nil
	_, err = f.worker.Analyze(ctx, model.TestKindSpeaking, sp.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"uz", "uz"}, f.grader.langs)

	ls := completedListening(t, f.db, user.ID)
	require.NoError(t, f.db.Model(ls).Update("lang", "").Error)
	f.grader.langs = nil
	f.grader.listening = &grader.ListeningReview{}
	_, err = f.worker.Analyze(ctx, model.TestKindListening, ls.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"en"}, f.grader.langs)
}

func TestValidationFailuresSkipRetries(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewUser(t, f.db, 0)
	writing := model.Writing{UserID: user.ID, Status: model.SessionStatusCompleted, StartTime: time.Now().UTC()}
	require.NoError(t, f.db.Create(&writing).Error)

	_, err := f.queue.Enqueue(context.Background(), model.TestKindWriting, writing.ID)
	require.NoError(t, err)
	drain(t, f.worker)

	assert.Empty(t, f.queue.retries)
	assert.Len(t, f.queue.dead, 1)
}

func TestIncompleteSessionsAreDropped(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewUser(t, f.db, 0)
	s := model.Speaking{UserID: user.ID, Status: model.SessionStatusCancelled, StartTime: time.Now().UTC()}
	require.NoError(t, f.db.Create(&s).Error)

	_, err := f.queue.Enqueue(context.Background(), model.TestKindSpeaking, s.ID)
	require.NoError(t, err)
	_, err = f.queue.Enqueue(context.Background(), model.TestKindSpeaking, 9999)
	require.NoError(t, err)
	drain(t, f.worker)

	assert.Len(t, f.queue.acked, 2)
	assert.Empty(t, f.grader.speakingIn)
	var count int64
	require.NoError(t, f.db.Model(&model.SpeakingAnalyse{}).Count(&count).Error)
	assert.Zero(t, count)
}

func completedListening(t *testing.T, db *gorm.DB, userID uint) *model.ListeningSession {
	t.Helper()
	exam := testutil.ListeningExam(t, db)
	start := time.Now().UTC().Add(-30 * time.Minute)
	end := start.Add(25 * time.Minute)
	s := model.ListeningSession{UserID: userID, ExamID: exam.ID, Status: model.SessionStatusCompleted, StartTime: start, EndTime: &end}
	require.NoError(t, db.Create(&s).Error)

	var questions []model.ListeningQuestion
	require.NoError(t, db.Order("question_index").Find(&questions).Error)
	answers := []model.ListeningAnswer{
		{SessionID: s.ID, UserID: userID, QuestionID: questions[0].ID, UserAnswer: model.StringList{"a"}, IsCorrect: true, Score: 1},
		{SessionID: s.ID, UserID: userID, QuestionID: questions[1].ID, UserAnswer: model.StringList{"b"}},
	}
	require.NoError(t, db.Create(&answers).Error)
	return &s
}

func TestListeningScoreIsLocal(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewUser(t, f.db, 0)
	s := completedListening(t, f.db, user.ID)
	f.grader.listening = &grader.ListeningReview{
		CorrectAnswers: 2,
		OverallScore:   9,
		Feedback:       model.ListeningFeedback{ListeningSkills: "good", Concentration: "steady", StrategyRecommendations: "predict"},
	}

	res, err := f.worker.Analyze(context.Background(), model.TestKindListening, s.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 4.5, res.Score)

	var row model.ListeningAnalyse
	require.NoError(t, f.db.Where("session_id = ?", s.ID).First(&row).Error)
	assert.Equal(t, 1, row.CorrectAnswers)
	assert.Equal(t, 2, row.TotalQuestions)
	assert.Equal(t, 1500, row.DurationSeconds)
	assert.Contains(t, string(row.Feedback), "predict")
}

func TestListeningStoredWithoutFeedbackWhenGraderOutputIsInvalid(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewUser(t, f.db, 0)
	s := completedListening(t, f.db, user.ID)
	f.grader.listeningErr = apperr.New(apperr.KindGraderOutputInvalid, "bad json")

	res, err := f.worker.Analyze(context.Background(), model.TestKindListening, s.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 4.5, res.Score)

	f.grader.listeningErr = apperr.Upstream("down", errors.New("503"))
	_, err = f.worker.Analyze(context.Background(), model.TestKindListening, s.ID, false)
	assert.True(t, apperr.Is(err, apperr.KindUpstreamUnavailable))
	res, err = f.worker.Analyze(context.Background(), model.TestKindListening, s.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Version)
}

func TestReadingAnalysis(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewUser(t, f.db, 0)
	passage := testutil.ReadingPassage(t, f.db, "Glass")
	start := time.Now().UTC().Add(-time.Hour)
	end := start.Add(40 * time.Minute)
	reading := model.Reading{UserID: user.ID, Status: model.SessionStatusCompleted, StartTime: start, EndTime: &end, Passages: []model.ReadingPassage{{ID: passage.ID}}}
	require.NoError(t, f.db.Omit("Passages.*").Create(&reading).Error)
	require.NoError(t, f.db.Create(&model.ReadingAnswer{
		ReadingID: reading.ID, UserID: user.ID, PassageID: passage.ID, QuestionID: passage.Questions[0].ID, Text: "Mesopotamia", IsCorrect: true,
	}).Error)

	res, err := f.worker.Analyze(context.Background(), model.TestKindReading, reading.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 4.5, res.Score)

	var row model.ReadingAnalyse
	require.NoError(t, f.db.Where("reading_id = ?", reading.ID).First(&row).Error)
	assert.Equal(t, 1, row.CorrectAnswers)
	assert.Equal(t, 2, row.TotalQuestions)
	assert.Contains(t, string(row.Passages), "Fair result")
}

func TestRetryDelay(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 2*time.Second, RetryDelay(config, 1))
	assert.Equal(t, 4*time.Second, RetryDelay(config, 2))
	assert.Equal(t, 32*time.Second, RetryDelay(config, 5))
	assert.Equal(t, 5*time.Minute, RetryDelay(config, 20))
}

func TestWorkerOverRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := queue.New(client, queue.Options{})

	f := newFixture(t)
	f.worker = New(f.db, q, f.grader, f.store, f.notifier, nil, DefaultConfig())
	user := testutil.NewUser(t, f.db, 0)
	s := completedSpeaking(t, f.db, user.ID, map[int]model.SpeakingAnswer{1: {TextAnswer: "hi"}})

	ctx := context.Background()
	_, err := q.Enqueue(ctx, model.TestKindSpeaking, s.ID)
	require.NoError(t, err)
	processed, err := f.worker.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{}, stats)

	// the same session can be analysed again once its job is acked
	_, err = q.Enqueue(ctx, model.TestKindSpeaking, s.ID)
	require.NoError(t, err)
	_, err = f.worker.ProcessNext(ctx)
	require.NoError(t, err)

	var row model.SpeakingAnalyse
	require.NoError(t, f.db.Where("speaking_id = ?", s.ID).First(&row).Error)
	assert.Equal(t, 2, row.AnalysisVersion)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	config := DefaultConfig()
	config.Workers = 2
	config.PollInterval = 5 * time.Millisecond
	w := New(f.db, f.queue, f.grader, f.store, f.notifier, nil, config)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
