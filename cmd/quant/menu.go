package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/enhen-x/Quant-A-Share/internal/app"
)

// MenuItem 菜单项
type MenuItem struct {
	Key   string
	Title string
	Run   stepFunc
}

// Menu 编号菜单，每项执行完成后回到菜单，只有 0 或输入结束才退出
type Menu struct {
	app   *app.App
	in    *bufio.Scanner
	out   io.Writer
	items []MenuItem
}

// NewMenu 创建菜单
func NewMenu(a *app.App, in io.Reader, out io.Writer) *Menu {
	return &Menu{
		app: a,
		in:  bufio.NewScanner(in),
		out: out,
		items: []MenuItem{
			{Key: "1", Title: "初始化/更新数据 (下载 + 筛选)", Run: runInit},
			{Key: "2", Title: "特征工程 (计算因子 + 打标签)", Run: runFeatures},
			{Key: "3", Title: "训练模型 (梯度提升树)", Run: runTrain},
			{Key: "4", Title: "策略回测 (验证集)", Run: runBacktest},
			{Key: "5", Title: "审计回测记录 (查ST/涨跌停)", Run: runAudit},
			{Key: "6", Title: "实盘选股 (输出今日买入清单)", Run: runScan},
			{Key: "7", Title: "随机窗口回测", Run: runRandomBacktest},
			{Key: "9", Title: "一键周度更新 (自动化流水线)", Run: runWeekly},
		},
	}
}

// Run 菜单主循环
func (m *Menu) Run(ctx context.Context) error {
	for {
		m.printMenu()
		fmt.Fprint(m.out, "请输入选项序号: ")
		if !m.in.Scan() {
			fmt.Fprintln(m.out)
			return m.in.Err()
		}
		choice := strings.TrimSpace(m.in.Text())
		if choice == "0" {
			fmt.Fprintln(m.out, "再见！")
			return nil
		}

		item, ok := m.find(choice)
		if !ok {
			fmt.Fprintf(m.out, "无效选项: %q\n", choice)
			continue
		}

		fmt.Fprintf(m.out, "\n>>> %s\n", item.Title)
		if err := m.runItem(ctx, item); err != nil {
			log.Error().Err(err).Str("item", item.Key).Msg("任务失败")
			fmt.Fprintf(m.out, "\n失败: %v\n", err)
		} else {
			fmt.Fprintln(m.out, "\n完成")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprint(m.out, "按回车键返回菜单...")
		if !m.in.Scan() {
			fmt.Fprintln(m.out)
			return m.in.Err()
		}
	}
}

// runItem 执行单个菜单项，panic 转为错误后回到菜单
func (m *Menu) runItem(ctx context.Context, item MenuItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("item", item.Key).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("菜单项崩溃")
			err = fmt.Errorf("内部错误: %v", r)
		}
	}()
	return item.Run(ctx, m.app, m.out)
}

func (m *Menu) find(key string) (MenuItem, bool) {
	for _, it := range m.items {
		if it.Key == key {
			return it, true
		}
	}
	return MenuItem{}, false
}

func (m *Menu) printMenu() {
	fmt.Fprintln(m.out, strings.Repeat("=", 50))
	fmt.Fprintln(m.out, "      A股短线量化交易系统 - 控制台")
	fmt.Fprintln(m.out, strings.Repeat("=", 50))
	for _, it := range m.items {
		if it.Key == "9" {
			fmt.Fprintln(m.out, strings.Repeat("-", 30))
		}
		fmt.Fprintf(m.out, " [%s]  %s\n", it.Key, it.Title)
	}
	fmt.Fprintln(m.out, " [0]  退出")
	fmt.Fprintln(m.out, strings.Repeat("-", 30))
}
