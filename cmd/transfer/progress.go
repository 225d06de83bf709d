package main

import (
	"github.com/cheggaaa/pb/v3"
	"github.com/reviewdeck/go-transferutils/transfer"
)

const barTemplate = `{{string . "name"}} {{bar . }} {{percent . }} {{string . "status"}}`

// progressBars renders one bar per transfer, in tenths of a percent.
type progressBars struct {
	pool *pb.Pool
	bars map[string]*pb.ProgressBar
}

func newProgressBars(transfers []transfer.Transfer) (*progressBars, error) {
	p := &progressBars{bars: map[string]*pb.ProgressBar{}}

	var bars []*pb.ProgressBar
	for _, t := range transfers {
		bar := pb.New64(1000)
		bar.SetTemplate(barTemplate)
		bar.Set("name", t.Filename)
		bar.Set("status", t.Message)
		p.bars[t.ID] = bar
		bars = append(bars, bar)
	}

	pool, err := pb.StartPool(bars...)
	if err != nil {
		return nil, err
	}
	p.pool = pool

	return p, nil
}

func (p *progressBars) update(transfers []transfer.Transfer) {
	for _, t := range transfers {
		bar, ok := p.bars[t.ID]
		if !ok {
			continue
		}

		bar.SetCurrent(int64(t.Progress * 10))
		status := t.Message
		if t.Status == transfer.StatusFailed {
			status = t.Error
		}
		bar.Set("status", status)
	}
}

func (p *progressBars) stop() error {
	return p.pool.Stop()
}
