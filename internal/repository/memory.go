package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invoiceworks/invoice-converter/constants"
	"github.com/invoiceworks/invoice-converter/internal/common"
	"github.com/invoiceworks/invoice-converter/internal/entity"
)

// MemoryStore backs JobRepository and FileRepository in memory; used by the
// batch CLI (no database) and by pipeline tests. Jobs() and Files() return
// the interface views.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*entity.Job
	files map[uuid.UUID]*entity.InvoiceFile
	order []uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[uuid.UUID]*entity.Job),
		files: make(map[uuid.UUID]*entity.InvoiceFile),
	}
}

func (m *MemoryStore) Jobs() JobRepository   { return &memJobs{m} }
func (m *MemoryStore) Files() FileRepository { return &memFiles{m} }

type memJobs struct{ s *MemoryStore }

var _ JobRepository = (*memJobs)(nil)

func (r *memJobs) Create(ctx context.Context, job *entity.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *job
	r.s.jobs[job.ID] = &cp
	return nil
}

func (r *memJobs) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *memJobs) SetStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if job, ok := r.s.jobs[id]; ok {
		job.Status = status
	}
	return nil
}

func (r *memJobs) SetProcessed(ctx context.Context, id uuid.UUID, processed int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if job, ok := r.s.jobs[id]; ok && processed > job.Processed {
		job.Processed = processed
	}
	return nil
}

type memFiles struct{ s *MemoryStore }

var _ FileRepository = (*memFiles)(nil)

func (r *memFiles) Create(ctx context.Context, f *entity.InvoiceFile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *f
	r.s.files[f.ID] = &cp
	r.s.order = append(r.s.order, f.ID)
	return nil
}

func (r *memFiles) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*entity.InvoiceFile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	idx := make(map[uuid.UUID]int, len(r.s.order))
	for i, id := range r.s.order {
		idx[id] = i
	}
	var out []*entity.InvoiceFile
	for _, f := range r.s.files {
		if f.JobID == jobID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return idx[out[i].ID] < idx[out[j].ID] })
	return out, nil
}

func (r *memFiles) SetStatus(ctx context.Context, id uuid.UUID, status constants.FileStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if f, ok := r.s.files[id]; ok {
		f.Status = status
	}
	return nil
}

func (r *memFiles) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if f, ok := r.s.files[id]; ok {
		f.Status = constants.FileStatusFailed
		if f.ErrorMessage == nil {
			f.ErrorMessage = &message
		}
	}
	return nil
}

func (r *memFiles) SetCurrencies(ctx context.Context, id uuid.UUID, original, target string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if f, ok := r.s.files[id]; ok {
		f.OriginalCurrency = &original
		f.TargetCurrency = &target
	}
	return nil
}

func (r *memFiles) SetConversion(ctx context.Context, id uuid.UUID, rate, convertedTotal decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if f, ok := r.s.files[id]; ok {
		f.ExchangeRate = &rate
		f.ConvertedTotal = &convertedTotal
		f.Status = constants.FileStatusConverted
	}
	return nil
}
