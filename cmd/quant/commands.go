package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/enhen-x/Quant-A-Share/internal/app"
	"github.com/enhen-x/Quant-A-Share/internal/model"
	"github.com/enhen-x/Quant-A-Share/internal/scanner"
)

func runInit(ctx context.Context, a *app.App, w io.Writer) error {
	rep, err := a.InitData(ctx)
	if rep.Load != nil {
		fmt.Fprintf(w, "下载: 共 %d 只，更新 %d，已最新 %d，失败 %d，新增 %d 行\n",
			rep.Load.Total, rep.Load.Updated, rep.Load.UpToDate, rep.Load.Failed, rep.Load.NewRows)
		fmt.Fprintf(w, "基准指数: %d 行\n", rep.Benchmark)
	}
	printWarnings(w, rep.Warnings)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "股票池: %d 只 -> %s\n", rep.PoolSize, a.Cfg.PoolPath())
	return nil
}

func runFeatures(ctx context.Context, a *app.App, w io.Writer) error {
	rep, err := a.Features(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "样本: %d 行 -> %s\n", rep.Rows, a.Cfg.DatasetPath())
	if rep.Labels != nil {
		fmt.Fprintf(w, "标签修正: %d 行，变化 %d，缺少基准 %d，正样本比例 %.2f%% -> %.2f%%\n",
			rep.Labels.Rows, rep.Labels.Changed, rep.Labels.MissingBench,
			rep.Labels.PositiveBefore*100, rep.Labels.PositiveAfter*100)
	}
	printWarnings(w, rep.Warnings)
	return nil
}

func runTrain(ctx context.Context, a *app.App, w io.Writer) error {
	rep, err := a.Train(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "训练集 %d 行（截至 %s，正样本 %.2f%%），验证集 %d 行（自 %s）\n",
		rep.TrainRows, rep.TrainEnd, rep.TrainPositive*100, rep.ValidRows, rep.ValidStart)
	fmt.Fprintf(w, "验证集 AUC: %.4f，最佳迭代: %d\n\n", rep.AUC, rep.BestIteration)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "阈值\t选中\t命中\t精确率")
	for _, s := range rep.Thresholds {
		fmt.Fprintf(tw, "%.2f\t%d\t%d\t%.2f%%\n", s.Threshold, s.Selected, s.Hits, s.Precision*100)
	}
	tw.Flush()

	fmt.Fprintln(w, "\n特征重要性（分裂增益）:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, f := range rep.Importance {
		if i >= 10 {
			break
		}
		fmt.Fprintf(tw, "%d\t%s\t%.2f\n", i+1, f.Name, f.Gain)
	}
	tw.Flush()
	return nil
}

func runBacktest(ctx context.Context, a *app.App, w io.Writer) error {
	rep, err := a.Backtest(ctx)
	if err != nil {
		return err
	}
	printBacktest(w, rep)
	fmt.Fprintf(w, "资金曲线 -> %s\n", a.Cfg.CurvePath())
	return nil
}

func printBacktest(w io.Writer, rep *model.BacktestReport) {
	fmt.Fprintf(w, "回测区间: %s ~ %s，调仓 %d 次（空仓 %d 次，剔除 %d 只）\n",
		rep.StartDate, rep.EndDate, rep.Periods, rep.EmptyPeriods, rep.Rejected)
	fmt.Fprintf(w, "策略收益: %.2f%%  基准收益: %.2f%%  超额: %.2f 个百分点\n",
		rep.StrategyReturn, rep.BenchmarkReturn, rep.Alpha)
}

func runRandomBacktest(ctx context.Context, a *app.App, w io.Writer) error {
	rep, err := a.RandomBacktest(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\t开始\t结束\t策略\t基准\t超额")
	for i, t := range rep.Trials {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f%%\t%.2f%%\t%.2f\n", i+1, t.StartDate, t.EndDate, t.StrategyReturn, t.BenchmarkReturn, t.Alpha)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n平均收益 %.2f%%，平均超额 %.2f，绝对胜率 %.0f%%，跑赢基准 %.0f%%\n",
		rep.MeanStrategyReturn, rep.MeanAlpha, rep.WinRateAbsolute*100, rep.WinRateVsBenchmark*100)
	fmt.Fprintf(w, "最好: %s 起 %.2f%%；最差: %s 起 %.2f%%\n",
		rep.Best.StartDate, rep.Best.StrategyReturn, rep.Worst.StartDate, rep.Worst.StrategyReturn)
	return nil
}

func runAudit(ctx context.Context, a *app.App, w io.Writer) error {
	records, err := a.Audit(ctx)
	if err != nil {
		return err
	}
	flagged := 0
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "日期\t代码\t名称\t概率\t涨跌幅\t未来收益\t标记")
	for _, r := range records {
		if len(r.Flags) > 0 {
			flagged++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%.2f%%\t%.2f%%\t%s\n",
			r.Date, r.Code, r.Name, r.Probability, r.PctChg, r.ForwardReturn*100, strings.Join(r.Flags, ","))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n共 %d 条记录，%d 条有异常标记\n", len(records), flagged)
	return nil
}

func runScan(ctx context.Context, a *app.App, w io.Writer) error {
	res, err := a.Scan(ctx)
	if err != nil {
		return err
	}
	printScan(w, res)
	return nil
}

func printScan(w io.Writer, res *scanner.Result) {
	fmt.Fprintf(w, "扫描 %d 只，候选 %d 只，数据过期 %d 只\n", res.Scanned, res.Candidates, res.Stale)
	if len(res.Rejected) > 0 {
		reasons := make([]string, 0, len(res.Rejected))
		for k, v := range res.Rejected {
			reasons = append(reasons, fmt.Sprintf("%s %d", k, v))
		}
		sort.Strings(reasons)
		fmt.Fprintf(w, "剔除: %s\n", strings.Join(reasons, "，"))
	}
	if len(res.Items) == 0 {
		fmt.Fprintln(w, "今日没有符合条件的股票")
		return
	}
	if res.Forced {
		fmt.Fprintln(w, "注意：没有股票超过置信度阈值，以下为概率最高的候选")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "代码\t名称\t收盘\t涨跌幅\t概率")
	for _, it := range res.Items {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f%%\t%.3f\n", it.Code, it.Name, it.Close, it.PctChg, it.Probability)
	}
	tw.Flush()
	if res.Path != "" {
		fmt.Fprintf(w, "买入清单 -> %s\n", res.Path)
	}
}

func runWeekly(ctx context.Context, a *app.App, w io.Writer) error {
	sum, err := a.Weekly(ctx)
	if sum != nil {
		fmt.Fprintf(w, "股票池 %d 只，样本 %d 行，耗时 %s\n", sum.PoolSize, sum.Rows, sum.Duration)
		if sum.Scan != nil {
			printScan(w, sum.Scan)
		}
		printWarnings(w, sum.Warnings)
	}
	return err
}

func printWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintf(w, "警告: %s\n", msg)
	}
}
