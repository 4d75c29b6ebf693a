package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/homework-tracker-api/internal/deadline"
	"github.com/noah-isme/homework-tracker-api/internal/dto"
	"github.com/noah-isme/homework-tracker-api/internal/models"
	"github.com/noah-isme/homework-tracker-api/internal/repository"
)

var fixedNow = time.Date(2024, time.September, 2, 9, 0, 0, 0, time.UTC)

type stubStorage struct {
	uploads []string
	err     error
}

func (s *stubStorage) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", err
	}
	s.uploads = append(s.uploads, name)
	return "https://cdn.example.com/" + name, nil
}

type homeworkFixture struct {
	svc     HomeworkService
	now     *time.Time
	db      *gorm.DB
	redis   *redis.Client
	storage *stubStorage
}

func newHomeworkFixture(t *testing.T, withStorage bool) homeworkFixture {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Homework{}))

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	now := fixedNow
	var storage FileStorage
	stub := &stubStorage{}
	if withStorage {
		storage = stub
	}

	svc := NewHomeworkService(
		repository.NewHomeworkRepository(db),
		validator.New(validator.WithRequiredStructEnabled()),
		redisClient,
		storage,
		HomeworkServiceConfig{
			StatsCacheTTL:   time.Minute,
			MaxAttachmentMB: 1,
			Clock:           func() time.Time { return now },
		},
		zerolog.Nop(),
	)

	return homeworkFixture{svc: svc, now: &now, db: db, redis: redisClient, storage: stub}
}

func deadlineIn(offset time.Duration) *string {
	value := fixedNow.Add(offset).Format(time.RFC3339)
	return &value
}

func stringPointer(v string) *string { return &v }

func boolPointer(v bool) *bool { return &v }

func TestHomeworkServiceListSortsAndAnnotates(t *testing.T) {
	fx := newHomeworkFixture(t, false)
	ctx := context.Background()

	payloads := []dto.HomeworkCreateRequest{
		{Title: "Novel summary", Deadline: deadlineIn(5 * 24 * time.Hour)},
		{Title: "Reading log"},
		{Title: "Worksheet", Deadline: deadlineIn(24 * time.Hour), Priority: models.PriorityHigh},
		{Title: "Lab report", Deadline: deadlineIn(-time.Hour)},
	}
	for _, payload := range payloads {
		_, err := fx.svc.Create(ctx, 1, payload)
		require.NoError(t, err)
	}

	items, err := fx.svc.List(ctx, 1, dto.HomeworkListQuery{})
	require.NoError(t, err)
	require.Len(t, items, 4)

	require.Equal(t, "Reading log", items[0].Title)
	require.Equal(t, deadline.StatusNoDeadline, items[0].Urgency)
	require.Equal(t, deadline.VariantSecondary, items[0].Variant)
	require.Empty(t, items[0].DeadlineLabel)

	require.Equal(t, "Lab report", items[1].Title)
	require.Equal(t, deadline.StatusOverdue, items[1].Urgency)
	require.Equal(t, deadline.VariantDestructive, items[1].Variant)
	require.Equal(t, "Today", items[1].DeadlineLabel)

	require.Equal(t, "Worksheet", items[2].Title)
	require.Equal(t, deadline.StatusDueSoon, items[2].Urgency)
	require.Equal(t, "Tomorrow", items[2].DeadlineLabel)
	require.Equal(t, models.PriorityHigh, items[2].Priority)

	require.Equal(t, "Novel summary", items[3].Title)
	require.Equal(t, deadline.StatusNormal, items[3].Urgency)
	require.Equal(t, "In 5 days", items[3].DeadlineLabel)
	require.NotNil(t, items[3].DaysLeft)
	require.Equal(t, 5, *items[3].DaysLeft)
}

func TestHomeworkServiceListFiltersByStatus(t *testing.T) {
	fx := newHomeworkFixture(t, false)
	ctx := context.Background()

	_, err := fx.svc.Create(ctx, 1, dto.HomeworkCreateRequest{Title: "Soon", Deadline: deadlineIn(48 * time.Hour)})
	require.NoError(t, err)
	_, err = fx.svc.Create(ctx, 1, dto.HomeworkCreateRequest{Title: "Later", Deadline: deadlineIn(240 * time.Hour)})
	require.NoError(t, err)

	items, err := fx.svc.List(ctx, 1, dto.HomeworkListQuery{Status: string(deadline.StatusDueSoon)})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Soon", items[0].Title)

	_, err = fx.svc.List(ctx, 1, dto.HomeworkListQuery{Status: "someday"})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestHomeworkServiceCreateSanitizesText(t *testing.T) {
	fx := newHomeworkFixture(t, false)

	created, err := fx.svc.Create(context.Background(), 1, dto.HomeworkCreateRequest{
		Title:       "<b>Essay</b> & notes",
		Subject:     "  English ",
		Description: "<script>alert(1)</script>Five paragraphs",
		Extras:      map[string]interface{}{"classroom": "B-204"},
	})
	require.NoError(t, err)
	require.Equal(t, "Essay & notes", created.Title)
	require.Equal(t, "English", created.Subject)
	require.Equal(t, "Five paragraphs", created.Description)
	require.Equal(t, models.PriorityMedium, created.Priority)
	require.Equal(t, "B-204", created.Extras["classroom"])

	_, err = fx.svc.Create(context.Background(), 1, dto.HomeworkCreateRequest{Title: "<b></b>"})
	require.ErrorIs(t, err, ErrEmptyTitle)
}

func TestHomeworkServiceCreateValidatesPayload(t *testing.T) {
	fx := newHomeworkFixture(t, false)
	var validationErrors validator.ValidationErrors

	_, err := fx.svc.Create(context.Background(), 1, dto.HomeworkCreateRequest{Title: "Quiz", Priority: "urgent"})
	require.ErrorAs(t, err, &validationErrors)

	_, err = fx.svc.Create(context.Background(), 1, dto.HomeworkCreateRequest{Title: "Quiz", Deadline: stringPointer("next friday")})
	require.ErrorAs(t, err, &validationErrors)

	_, err = fx.svc.Create(context.Background(), 1, dto.HomeworkCreateRequest{})
	require.ErrorAs(t, err, &validationErrors)
}

func TestHomeworkServiceAcceptsPastDeadlines(t *testing.T) {
	fx := newHomeworkFixture(t, false)

	created, err := fx.svc.Create(context.Background(), 1, dto.HomeworkCreateRequest{Title: "Late", Deadline: deadlineIn(-72 * time.Hour)})
	require.NoError(t, err)
	require.Equal(t, deadline.StatusOverdue, created.Urgency)
	require.Equal(t, "3 days ago", created.DeadlineLabel)
}

func TestHomeworkServiceUpdate(t *testing.T) {
	fx := newHomeworkFixture(t, false)
	ctx := context.Background()

	created, err := fx.svc.Create(ctx, 1, dto.HomeworkCreateRequest{Title: "Poster", Deadline: deadlineIn(24 * time.Hour)})
	require.NoError(t, err)

	updated, err := fx.svc.Update(ctx, 1, created.ID, dto.HomeworkUpdateRequest{
		Title:         stringPointer("Science poster"),
		Priority:      stringPointer(models.PriorityLow),
		ClearDeadline: true,
	})
	require.NoError(t, err)
	require.Equal(t, "Science poster", updated.Title)
	require.Equal(t, models.PriorityLow, updated.Priority)
	require.Nil(t, updated.Deadline)
	require.Equal(t, deadline.StatusNoDeadline, updated.Urgency)

	updated, err = fx.svc.Update(ctx, 1, created.ID, dto.HomeworkUpdateRequest{Deadline: deadlineIn(10 * 24 * time.Hour), Completed: boolPointer(true)})
	require.NoError(t, err)
	require.Equal(t, deadline.StatusNormal, updated.Urgency)
	require.True(t, updated.Completed)
	require.NotNil(t, updated.CompletedAt)

	completedAt := *updated.CompletedAt
	*fx.now = fixedNow.Add(6 * time.Hour)
	updated, err = fx.svc.Update(ctx, 1, created.ID, dto.HomeworkUpdateRequest{Completed: boolPointer(true)})
	require.NoError(t, err)
	require.True(t, completedAt.Equal(*updated.CompletedAt))

	updated, err = fx.svc.Update(ctx, 1, created.ID, dto.HomeworkUpdateRequest{Deadline: stringPointer("  ")})
	require.NoError(t, err)
	require.Nil(t, updated.Deadline)
	require.Equal(t, deadline.StatusNoDeadline, updated.Urgency)

	stored, err := fx.svc.Get(ctx, 1, created.ID)
	require.NoError(t, err)
	require.Nil(t, stored.Deadline)

	_, err = fx.svc.Update(ctx, 1, created.ID, dto.HomeworkUpdateRequest{Deadline: deadlineIn(time.Hour), ClearDeadline: true})
	require.ErrorIs(t, err, ErrInvalidDeadline)

	_, err = fx.svc.Update(ctx, 1, created.ID, dto.HomeworkUpdateRequest{Deadline: stringPointer("next week")})
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)

	_, err = fx.svc.Update(ctx, 2, created.ID, dto.HomeworkUpdateRequest{Title: stringPointer("Hijack")})
	require.ErrorIs(t, err, ErrHomeworkNotFound)
}

func TestHomeworkServiceSetCompleted(t *testing.T) {
	fx := newHomeworkFixture(t, false)
	ctx := context.Background()

	created, err := fx.svc.Create(ctx, 1, dto.HomeworkCreateRequest{Title: "Flashcards"})
	require.NoError(t, err)

	done, err := fx.svc.SetCompleted(ctx, 1, created.ID, true)
	require.NoError(t, err)
	require.True(t, done.Completed)
	require.NotNil(t, done.CompletedAt)
	require.True(t, fixedNow.Equal(*done.CompletedAt))

	reopened, err := fx.svc.SetCompleted(ctx, 1, created.ID, false)
	require.NoError(t, err)
	require.False(t, reopened.Completed)
	require.Nil(t, reopened.CompletedAt)

	_, err = fx.svc.SetCompleted(ctx, 1, "missing", true)
	require.ErrorIs(t, err, ErrHomeworkNotFound)
}

func TestHomeworkServiceGetAndDelete(t *testing.T) {
	fx := newHomeworkFixture(t, false)
	ctx := context.Background()

	created, err := fx.svc.Create(ctx, 1, dto.HomeworkCreateRequest{Title: "Map quiz"})
	require.NoError(t, err)

	fetched, err := fx.svc.Get(ctx, 1, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, fetched.ID)

	_, err = fx.svc.Get(ctx, 9, created.ID)
	require.ErrorIs(t, err, ErrHomeworkNotFound)

	require.NoError(t, fx.svc.Delete(ctx, 1, created.ID))
	require.ErrorIs(t, fx.svc.Delete(ctx, 1, created.ID), ErrHomeworkNotFound)
}

func TestHomeworkServiceStatsCachesAndInvalidates(t *testing.T) {
	fx := newHomeworkFixture(t, false)
	ctx := context.Background()

	seed := []dto.HomeworkCreateRequest{
		{Title: "Overdue", Deadline: deadlineIn(-2 * time.Hour)},
		{Title: "Soon", Deadline: deadlineIn(36 * time.Hour)},
		{Title: "Later", Deadline: deadlineIn(9 * 24 * time.Hour)},
		{Title: "Open-ended"},
	}
	var doneID string
	for _, payload := range seed {
		created, err := fx.svc.Create(ctx, 5, payload)
		require.NoError(t, err)
		doneID = created.ID
	}
	_, err := fx.svc.SetCompleted(ctx, 5, doneID, true)
	require.NoError(t, err)

	first, hit, err := fx.svc.Stats(ctx, 5)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 4, first.Total)
	require.Equal(t, 1, first.Completed)
	require.Equal(t, 3, first.Pending)
	require.Equal(t, 1, first.Overdue)
	require.Equal(t, 1, first.DueSoon)
	require.Equal(t, 1, first.Normal)
	require.Equal(t, 0, first.NoDeadline)
	require.InDelta(t, 25.0, first.CompletionRate, 0.01)

	cached, hit, err := fx.svc.Stats(ctx, 5)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, first, cached)

	_, err = fx.svc.Create(ctx, 5, dto.HomeworkCreateRequest{Title: "New"})
	require.NoError(t, err)

	fresh, hit, err := fx.svc.Stats(ctx, 5)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 5, fresh.Total)
	require.Equal(t, 1, fresh.NoDeadline)
}

func TestHomeworkServiceSubjects(t *testing.T) {
	fx := newHomeworkFixture(t, false)
	ctx := context.Background()

	subjects, err := fx.svc.Subjects(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, subjects)
	require.Empty(t, subjects)

	_, err = fx.svc.Create(ctx, 1, dto.HomeworkCreateRequest{Title: "Essay", Subject: "English"})
	require.NoError(t, err)

	subjects, err = fx.svc.Subjects(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"English"}, subjects)
}

func TestHomeworkServiceAttachFile(t *testing.T) {
	fx := newHomeworkFixture(t, true)
	ctx := context.Background()

	created, err := fx.svc.Create(ctx, 1, dto.HomeworkCreateRequest{Title: "Worksheet"})
	require.NoError(t, err)

	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n")
	updated, err := fx.svc.AttachFile(ctx, 1, created.ID, newTestFileHeader(t, "Page 1.PDF", pdf))
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/page-1.pdf", updated.AttachmentURL)
	require.Equal(t, []string{"page-1.pdf"}, fx.storage.uploads)

	archive := []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00")
	_, err = fx.svc.AttachFile(ctx, 1, created.ID, newTestFileHeader(t, "bundle.zip", archive))
	require.ErrorIs(t, err, ErrAttachmentTypeNotAllowed)

	large := bytes.Repeat([]byte("a"), 1024*1024+1)
	_, err = fx.svc.AttachFile(ctx, 1, created.ID, newTestFileHeader(t, "notes.txt", large))
	require.ErrorIs(t, err, ErrAttachmentTooLarge)

	_, err = fx.svc.AttachFile(ctx, 1, created.ID, nil)
	require.ErrorIs(t, err, ErrAttachmentMissing)
}

func TestSanitizeFileNameFallsBackToClock(t *testing.T) {
	require.Equal(t, "lab-notes.pdf", sanitizeFileName("Lab Notes.PDF", fixedNow))
	require.Equal(t, fmt.Sprintf("homework-%d.png", fixedNow.Unix()), sanitizeFileName("***.png", fixedNow))
}

func TestHomeworkServiceAttachFileWithoutStorage(t *testing.T) {
	fx := newHomeworkFixture(t, false)

	_, err := fx.svc.AttachFile(context.Background(), 1, "any", newTestFileHeader(t, "a.txt", []byte("hello")))
	require.ErrorIs(t, err, ErrAttachmentsDisabled)
}

func newTestFileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(int64(len(content))+1024))
	files := req.MultipartForm.File["file"]
	require.Len(t, files, 1)
	return files[0]
}
