package xmldecoder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
)

var ErrPoolClosed = errors.New("decode pool is closed")

type decodeJob struct {
	msg    domain.RegistryMessage
	result chan port.DecodeResult
}

// DecodePool - фиксированный набор воркеров для разбора XML.
// Парсинг нагружает CPU, поэтому выполняется отдельно от горутин,
// которые ждут сеть и базу данных. Результат возвращается через канал-фьючерс.
type DecodePool struct {
	decoder port.DocumentDecoderPort
	jobs    chan decodeJob

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ port.DecodePoolPort = (*DecodePool)(nil)

func NewDecodePool(decoder port.DocumentDecoderPort, workers int) *DecodePool {
	if workers <= 0 {
		workers = 1
	}
	p := &DecodePool{
		decoder: decoder,
		jobs:    make(chan decodeJob, workers*2),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit ставит сообщение в очередь пула. Блокируется, только пока очередь заполнена.
func (p *DecodePool) Submit(ctx context.Context, msg domain.RegistryMessage) (<-chan port.DecodeResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	job := decodeJob{msg: msg, result: make(chan port.DecodeResult, 1)}
	select {
	case p.jobs <- job:
		return job.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close дожидается обработки уже принятых сообщений. Повторный вызов безопасен.
func (p *DecodePool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *DecodePool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		job.result <- p.decode(job.msg)
	}
}

// decode не дает панике парсера уронить воркер
func (p *DecodePool) decode(msg domain.RegistryMessage) (res port.DecodeResult) {
	defer func() {
		if r := recover(); r != nil {
			res = port.DecodeResult{Err: &domain.DecodeError{
				MessageGUID: msg.GUID,
				MessageType: msg.Type,
				Err:         fmt.Errorf("decoder panic: %v", r),
			}}
		}
	}()
	doc, err := p.decoder.Decode(msg)
	return port.DecodeResult{Document: doc, Err: err}
}
