package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/model"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/ratelimit"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/recognition"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/repository"
	pkgerrors "github.com/KYogeshPandey/snaptick-attendance-system/pkg/errors"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	mu    sync.Mutex
	seq   int
	users map[string]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return gorm.ErrDuplicatedKey
		}
	}
	if user.UserID == "" {
		m.seq++
		user.UserID = fmt.Sprintf("user-%d", m.seq)
	}
	user.CreatedAt = time.Now()
	m.users[user.UserID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.UserID] = user
	return nil
}

func (m *mockUserRepo) List(_ context.Context, offset, limit int) ([]model.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UserID < all[j].UserID })
	total := int64(len(all))
	if offset > len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// ── Mock ClassroomRepository ──

type mockClassroomRepo struct {
	mu         sync.Mutex
	seq        int
	classrooms map[string]*model.Classroom
}

func newMockClassroomRepo() *mockClassroomRepo {
	return &mockClassroomRepo{classrooms: make(map[string]*model.Classroom)}
}

func (m *mockClassroomRepo) Create(_ context.Context, c *model.Classroom) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ClassroomID == "" {
		m.seq++
		c.ClassroomID = fmt.Sprintf("class-%d", m.seq)
	}
	if c.Version == 0 {
		c.Version = 1
	}
	c.CreatedAt = time.Now()
	m.classrooms[c.ClassroomID] = c
	return nil
}

func (m *mockClassroomRepo) GetByID(_ context.Context, id string) (*model.Classroom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.classrooms[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockClassroomRepo) ListByTeacher(_ context.Context, teacherID string) ([]model.Classroom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Classroom
	for _, c := range m.classrooms {
		if c.TeacherID == teacherID {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ClassroomID < result[j].ClassroomID })
	return result, nil
}

func (m *mockClassroomRepo) ListAll(_ context.Context) ([]model.Classroom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Classroom
	for _, c := range m.classrooms {
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ClassroomID < result[j].ClassroomID })
	return result, nil
}

func (m *mockClassroomRepo) Update(_ context.Context, c *model.Classroom) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.classrooms[c.ClassroomID]
	if !ok || stored.Version != c.Version {
		return pkgerrors.ErrOptimisticLock
	}
	c.Version++
	cp := *c
	m.classrooms[c.ClassroomID] = &cp
	return nil
}

func (m *mockClassroomRepo) Delete(_ context.Context, id string, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.classrooms, id)
	return nil
}

// ── Mock StudentRepository ──

type mockStudentRepo struct {
	mu         sync.Mutex
	seq        int
	students   map[string]*model.Student
	classrooms *mockClassroomRepo // ListByUserID 预加载班级
}

func newMockStudentRepo(classrooms *mockClassroomRepo) *mockStudentRepo {
	return &mockStudentRepo{students: make(map[string]*model.Student), classrooms: classrooms}
}

func (m *mockStudentRepo) Create(_ context.Context, st *model.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.ClassroomID == st.ClassroomID && (s.RollNo == st.RollNo || s.Email == st.Email) {
			return gorm.ErrDuplicatedKey
		}
	}
	if st.StudentID == "" {
		m.seq++
		st.StudentID = fmt.Sprintf("stu-%03d", m.seq)
	}
	m.students[st.StudentID] = st
	return nil
}

func (m *mockStudentRepo) GetByID(_ context.Context, id string) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.students[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockStudentRepo) GetByRollNo(_ context.Context, classroomID, rollNo string) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.ClassroomID == classroomID && s.RollNo == rollNo {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockStudentRepo) GetByEmail(_ context.Context, classroomID, email string) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.ClassroomID == classroomID && strings.EqualFold(s.Email, email) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockStudentRepo) ListByClassroom(_ context.Context, classroomID string) ([]model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Student
	for _, s := range m.students {
		if s.ClassroomID == classroomID {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].RollNo != result[j].RollNo {
			return result[i].RollNo < result[j].RollNo
		}
		return result[i].StudentID < result[j].StudentID
	})
	return result, nil
}

func (m *mockStudentRepo) ListByUserID(ctx context.Context, userID string) ([]model.Student, error) {
	m.mu.Lock()
	var result []model.Student
	for _, s := range m.students {
		if s.UserID != nil && *s.UserID == userID {
			result = append(result, *s)
		}
	}
	m.mu.Unlock()

	sort.Slice(result, func(i, j int) bool { return result[i].StudentID < result[j].StudentID })
	if m.classrooms != nil {
		for i := range result {
			if c, err := m.classrooms.GetByID(ctx, result[i].ClassroomID); err == nil {
				result[i].Classroom = c
			}
		}
	}
	return result, nil
}

func (m *mockStudentRepo) Update(_ context.Context, st *model.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.students {
		if id != st.StudentID && s.ClassroomID == st.ClassroomID && s.RollNo == st.RollNo {
			return gorm.ErrDuplicatedKey
		}
	}
	cp := *st
	m.students[st.StudentID] = &cp
	return nil
}

func (m *mockStudentRepo) UpdateEncodings(_ context.Context, id string, encodings []byte, photoPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.Encodings = append([]byte(nil), encodings...)
	p := photoPath
	s.PhotoPath = &p
	return nil
}

func (m *mockStudentRepo) LinkUserByEmail(_ context.Context, email, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.students {
		if s.UserID == nil && strings.EqualFold(s.Email, email) {
			uid := userID
			s.UserID = &uid
			n++
		}
	}
	return n, nil
}

func (m *mockStudentRepo) Delete(_ context.Context, id string, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.students, id)
	return nil
}

// ── Mock AttendanceRepository ──

type mockAttendanceRepo struct {
	mu        sync.Mutex
	seq       int
	records   map[string]*model.AttendanceRecord // key: student|classroom|date
	lockCalls int
	failWrite error            // 非 nil 时所有写操作返回该错误
	students  *mockStudentRepo // ListByClassrooms 预加载学生
}

func newMockAttendanceRepo() *mockAttendanceRepo {
	return &mockAttendanceRepo{records: make(map[string]*model.AttendanceRecord)}
}

func attendanceKey(studentID, classroomID string, date time.Time) string {
	return studentID + "|" + classroomID + "|" + date.Format(model.DateLayout)
}

func (m *mockAttendanceRepo) LockClassroomDate(_ context.Context, _ string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockCalls++
	return nil
}

func (m *mockAttendanceRepo) GetByID(_ context.Context, id string) (*model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.AttendanceID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockAttendanceRepo) ListByClassroomDate(_ context.Context, classroomID string, date time.Time) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := date.Format(model.DateLayout)
	var result []model.AttendanceRecord
	for _, r := range m.records {
		if r.ClassroomID == classroomID && r.Date.Format(model.DateLayout) == day {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StudentID < result[j].StudentID })
	return result, nil
}

// put 调用方需持有锁
func (m *mockAttendanceRepo) put(rec *model.AttendanceRecord) {
	key := attendanceKey(rec.StudentID, rec.ClassroomID, rec.Date)
	if old, ok := m.records[key]; ok {
		rec.AttendanceID = old.AttendanceID
	} else {
		m.seq++
		rec.AttendanceID = fmt.Sprintf("att-%d", m.seq)
	}
	cp := *rec
	m.records[key] = &cp
}

func (m *mockAttendanceRepo) UpsertPresent(_ context.Context, rec *model.AttendanceRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return false, m.failWrite
	}
	if old, ok := m.records[attendanceKey(rec.StudentID, rec.ClassroomID, rec.Date)]; ok {
		stored := 0.0
		if old.Confidence != nil {
			stored = *old.Confidence
		}
		if rec.Confidence == nil || stored >= *rec.Confidence {
			return false, nil
		}
	}
	m.put(rec)
	return true, nil
}

func (m *mockAttendanceRepo) InsertAbsent(_ context.Context, recs []model.AttendanceRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(recs) == 0 {
		return 0, nil
	}
	if m.failWrite != nil {
		return 0, m.failWrite
	}
	var n int64
	for i := range recs {
		if _, ok := m.records[attendanceKey(recs[i].StudentID, recs[i].ClassroomID, recs[i].Date)]; ok {
			continue
		}
		m.put(&recs[i])
		n++
	}
	return n, nil
}

func (m *mockAttendanceRepo) Upsert(_ context.Context, rec *model.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	m.put(rec)
	return nil
}

func (m *mockAttendanceRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, r := range m.records {
		if r.AttendanceID == id {
			delete(m.records, key)
		}
	}
	return nil
}

func (m *mockAttendanceRepo) DailyStats(_ context.Context, classroomID string, from, to time.Time) ([]repository.DailyStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lo, hi := from.Format(model.DateLayout), to.Format(model.DateLayout)
	byDay := make(map[string]*repository.DailyStat)
	for _, r := range m.records {
		day := r.Date.Format(model.DateLayout)
		if r.ClassroomID != classroomID || day < lo || day > hi {
			continue
		}
		st, ok := byDay[day]
		if !ok {
			st = &repository.DailyStat{Date: r.Date}
			byDay[day] = st
		}
		if r.Status == model.AttendancePresent {
			st.Present++
		} else {
			st.Absent++
		}
	}
	result := make([]repository.DailyStat, 0, len(byDay))
	for _, st := range byDay {
		result = append(result, *st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.After(result[j].Date) })
	return result, nil
}

func (m *mockAttendanceRepo) StudentStats(_ context.Context, classroomID string) ([]repository.StudentStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byStudent := make(map[string]*repository.StudentStat)
	for _, r := range m.records {
		if r.ClassroomID != classroomID {
			continue
		}
		st, ok := byStudent[r.StudentID]
		if !ok {
			st = &repository.StudentStat{StudentID: r.StudentID}
			byStudent[r.StudentID] = st
		}
		st.Total++
		if r.Status == model.AttendancePresent {
			st.Present++
		}
	}
	result := make([]repository.StudentStat, 0, len(byStudent))
	for _, st := range byStudent {
		result = append(result, *st)
	}
	return result, nil
}

func (m *mockAttendanceRepo) ListByStudents(_ context.Context, studentIDs []string, f repository.AttendanceFilter) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		want[id] = true
	}
	var result []model.AttendanceRecord
	for _, r := range m.records {
		if want[r.StudentID] && matchFilter(r, f) {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.After(result[j].Date) })
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (m *mockAttendanceRepo) ListByClassrooms(ctx context.Context, f repository.AttendanceFilter) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	var result []model.AttendanceRecord
	for _, r := range m.records {
		if len(f.ClassroomIDs) > 0 && matchFilter(r, f) {
			result = append(result, *r)
		}
	}
	m.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		if result[i].ClassroomID != result[j].ClassroomID {
			return result[i].ClassroomID < result[j].ClassroomID
		}
		return result[i].StudentID < result[j].StudentID
	})
	if m.students != nil {
		for i := range result {
			if st, err := m.students.GetByID(ctx, result[i].StudentID); err == nil {
				result[i].Student = st
			}
		}
	}
	return result, nil
}

func matchFilter(r *model.AttendanceRecord, f repository.AttendanceFilter) bool {
	if len(f.ClassroomIDs) > 0 {
		found := false
		for _, id := range f.ClassroomIDs {
			if id == r.ClassroomID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && r.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.Date.After(f.To) {
		return false
	}
	return true
}

// get 测试断言用
func (m *mockAttendanceRepo) get(studentID, classroomID string, date time.Time) *model.AttendanceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[attendanceKey(studentID, classroomID, date)]; ok {
		cp := *r
		return &cp
	}
	return nil
}

func (m *mockAttendanceRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// ── Mock 外部依赖 ──

type fakeDetector struct {
	mu    sync.Mutex
	faces []recognition.DetectedFace
	err   error
	calls int
}

func (d *fakeDetector) DetectFaces(_ context.Context, _ []byte) ([]recognition.DetectedFace, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.faces, nil
}

type fakeLimiter struct {
	mu     sync.Mutex
	result ratelimit.Result
	err    error
	checks int
	resets []string
}

func newAllowingLimiter() *fakeLimiter {
	return &fakeLimiter{result: ratelimit.Result{Allowed: true, Limit: 80, Remaining: 79, Count: 1, Window: time.Hour}}
}

func (l *fakeLimiter) Check(_ context.Context, _ string) (ratelimit.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checks++
	return l.result, l.err
}

func (l *fakeLimiter) Status(_ context.Context, _ string) (ratelimit.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result, l.err
}

func (l *fakeLimiter) Reset(_ context.Context, actorID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resets = append(l.resets, actorID)
	return l.result.Count > 0, l.err
}

type fakePhotoStore struct {
	mu    sync.Mutex
	seq   int
	files map[string][]byte
}

func newFakePhotoStore() *fakePhotoStore {
	return &fakePhotoStore{files: make(map[string][]byte)}
}

func (p *fakePhotoStore) Save(classroomID, ext string, data []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	rel := fmt.Sprintf("%s/photo-%d%s", classroomID, p.seq, ext)
	p.files[rel] = data
	return rel, nil
}

func (p *fakePhotoStore) Remove(rel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.files, rel)
	return nil
}

func (p *fakePhotoStore) URL(rel string) string { return "/photos/" + rel }

type fakeBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
	err     error
}

func newFakeBlacklist() *fakeBlacklist {
	return &fakeBlacklist{revoked: make(map[string]time.Duration)}
}

func (b *fakeBlacklist) BlacklistToken(_ context.Context, jti string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.revoked[jti] = ttl
	return nil
}

func (b *fakeBlacklist) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.revoked[jti]
	return ok, b.err
}

var errMockDB = errors.New("mock: 数据库写入失败")

// ── 测试环境 ──

type testEnv struct {
	users      *mockUserRepo
	classrooms *mockClassroomRepo
	students   *mockStudentRepo
	attendance *mockAttendanceRepo
	repo       *repository.Repository
}

func newTestEnv() *testEnv {
	env := &testEnv{
		users:      newMockUserRepo(),
		classrooms: newMockClassroomRepo(),
		attendance: newMockAttendanceRepo(),
	}
	env.students = newMockStudentRepo(env.classrooms)
	env.attendance.students = env.students
	env.repo = &repository.Repository{
		User:       env.users,
		Classroom:  env.classrooms,
		Student:    env.students,
		Attendance: env.attendance,
	}
	return env
}

// addClassroom 创建班级，返回班级 ID
func (e *testEnv) addClassroom(teacherID, name string) string {
	c := &model.Classroom{Name: name, Subject: "Physics", TeacherID: teacherID}
	_ = e.classrooms.Create(context.Background(), c)
	return c.ClassroomID
}

// addStudent 创建学生；embeddings 非空时写入特征
func (e *testEnv) addStudent(classroomID, name, rollNo string, embeddings ...recognition.Embedding) *model.Student {
	st := &model.Student{
		ClassroomID: classroomID,
		Name:        name,
		RollNo:      rollNo,
		Email:       strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@school.edu",
	}
	if len(embeddings) > 0 {
		blob, _ := recognition.EncodeEmbeddings(embeddings)
		st.Encodings = blob
		photo := classroomID + "/" + rollNo + ".jpg"
		st.PhotoPath = &photo
	}
	_ = e.students.Create(context.Background(), st)
	return st
}
