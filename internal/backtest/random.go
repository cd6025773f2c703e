package backtest

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog/log"

	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/dataset"
	"github.com/enhen-x/Quant-A-Share/internal/model"
)

// RunRandom 在全部历史上随机选取 trials 个长度为 weeks 的连续窗口回测，结果只取决于 seed
func (b *Backtester) RunRandom(trials, weeks int, seed int64) (*model.RandomReport, error) {
	if trials <= 0 || weeks <= 1 {
		return nil, fmt.Errorf("trials 与 weeks 必须为正数: %d, %d", trials, weeks)
	}
	rows, err := dataset.Read(b.cfg.DatasetPath())
	if err != nil {
		return nil, fmt.Errorf("读取数据集失败: %w", err)
	}
	if err := b.ensureScorer(); err != nil {
		return nil, err
	}
	scored, err := Score(b.scorer, rows)
	if err != nil {
		return nil, err
	}
	book := NewBook(scored)
	report, err := randomWindows(newSimulator(b.cfg, b.names()), book, b.cfg.RebalanceEvery, trials, weeks, seed)
	if err != nil {
		return nil, err
	}
	log.Info().Int("trials", trials).Int("weeks", weeks).
		Float64("mean_return", report.MeanStrategyReturn).
		Float64("mean_alpha", report.MeanAlpha).
		Float64("win_rate", report.WinRateVsBenchmark).Msg("随机回测完成")
	return report, nil
}

// randomWindows 随机窗口模拟
func randomWindows(sim simulator, book *Book, every, trials, weeks int, seed int64) (*model.RandomReport, error) {
	all := RebalanceDates(book.Dates, every)
	if len(all) < weeks {
		return nil, fmt.Errorf("%w: 可用调仓周期 %d 周，不足 %d 周", config.ErrMissingInput, len(all), weeks)
	}

	rnd := rand.New(rand.NewSource(seed))
	maxStart := len(all) - weeks
	report := &model.RandomReport{}
	var absWins, relWins int
	for i := 0; i < trials; i++ {
		start := 0
		if maxStart > 0 {
			start = rnd.Intn(maxStart + 1)
		}
		window := all[start : start+weeks]
		r := sim.run(book, window)
		trial := model.RandomTrial{
			StartDate:       r.StartDate,
			EndDate:         r.EndDate,
			StrategyReturn:  r.StrategyReturn,
			BenchmarkReturn: r.BenchmarkReturn,
			Alpha:           r.Alpha,
		}
		report.Trials = append(report.Trials, trial)
		report.MeanStrategyReturn += trial.StrategyReturn
		report.MeanAlpha += trial.Alpha
		if trial.StrategyReturn > 0 {
			absWins++
		}
		if trial.Alpha > 0 {
			relWins++
		}
		if i == 0 || trial.StrategyReturn > report.Best.StrategyReturn {
			report.Best = trial
		}
		if i == 0 || trial.StrategyReturn < report.Worst.StrategyReturn {
			report.Worst = trial
		}
		log.Debug().Int("trial", i+1).Str("start", trial.StartDate).Float64("alpha", trial.Alpha).Msg("随机回测")
	}
	n := float64(trials)
	report.MeanStrategyReturn /= n
	report.MeanAlpha /= n
	report.WinRateAbsolute = float64(absWins) / n
	report.WinRateVsBenchmark = float64(relWins) / n
	return report, nil
}
