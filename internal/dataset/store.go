// Package dataset 管理带标签的样本表（SQLite 单文件），由特征工程生成、标签修正器原地更新、
// 训练与回测读取。
package dataset

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/features"
	"github.com/enhen-x/Quant-A-Share/internal/model"
)

const samplesTable = "samples"

// LabelUpdate 标签修正结果
type LabelUpdate struct {
	Code         string
	Date         string
	ExcessReturn float64
	Target       int
}

// Stats 数据集概况
type Stats struct {
	Rows          int     `json:"rows"`
	Codes         int     `json:"codes"`
	FirstDate     string  `json:"first_date"`
	LastDate      string  `json:"last_date"`
	PositiveRatio float64 `json:"positive_ratio"`
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", filepath.ToSlash(path)))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// EnsureSchema 建表
func EnsureSchema(db *sql.DB) error {
	cols := make([]string, 0, len(features.Names))
	for _, name := range features.Names {
		if name == "close" {
			continue
		}
		cols = append(cols, name+" REAL NOT NULL")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + samplesTable + ` (
			code TEXT NOT NULL,
			trade_date TEXT NOT NULL,
			close REAL NOT NULL,
			pct_chg REAL NOT NULL,
			` + strings.Join(cols, ",\n\t\t\t") + `,
			forward_return REAL NOT NULL,
			excess_return REAL NOT NULL DEFAULT 0,
			target INTEGER NOT NULL,
			PRIMARY KEY (code, trade_date)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_samples_date ON ` + samplesTable + `(trade_date);`,
		`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Write 原子写入整个数据集：先写同目录下唯一命名的临时文件，成功后 rename
func Write(path string, rows []model.FeatureRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	db, err := open(tmpPath)
	if err != nil {
		return err
	}
	fail := func(err error) error {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	if _, err := db.Exec("PRAGMA journal_mode=OFF;"); err != nil {
		return fail(err)
	}
	if _, err := db.Exec("PRAGMA synchronous=OFF;"); err != nil {
		return fail(err)
	}
	if err := EnsureSchema(db); err != nil {
		return fail(err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fail(err)
	}
	cols := columnList()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO ` + samplesTable + `(` + strings.Join(cols, ", ") + `) VALUES (` + placeholders + `)`)
	if err != nil {
		_ = tx.Rollback()
		return fail(err)
	}
	for _, r := range rows {
		if len(r.Features) != len(features.Names) {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fail(fmt.Errorf("%s %s 特征数量 %d 与列数 %d 不一致", r.Code, r.Date, len(r.Features), len(features.Names)))
		}
		args := make([]any, 0, len(cols))
		args = append(args, r.Code, r.Date, r.Close, r.PctChg)
		for i, v := range r.Features {
			if i == features.ColClose {
				continue
			}
			args = append(args, v)
		}
		args = append(args, r.ForwardReturn, r.ExcessReturn, r.Target)
		if _, err := stmt.Exec(args...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fail(err)
		}
	}
	_ = stmt.Close()

	names, _ := json.Marshal(features.Names)
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('feature_names', ?)`, string(names)); err != nil {
		_ = tx.Rollback()
		return fail(err)
	}
	if err := tx.Commit(); err != nil {
		return fail(err)
	}
	if err := db.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Read 读取全部样本，按 (日期, 代码) 排序
func Read(path string) ([]model.FeatureRow, error) {
	if err := config.RequireFile(path); err != nil {
		return nil, err
	}
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	cols := columnList()
	rows, err := db.Query(`SELECT ` + strings.Join(cols, ", ") + ` FROM ` + samplesTable + ` ORDER BY trade_date, code`)
	if err != nil {
		return nil, fmt.Errorf("读取数据集失败: %w", err)
	}
	defer rows.Close()

	var out []model.FeatureRow
	for rows.Next() {
		var r model.FeatureRow
		r.Features = make([]float64, len(features.Names))
		dest := make([]any, 0, len(cols))
		dest = append(dest, &r.Code, &r.Date, &r.Close, &r.PctChg)
		for i := range r.Features {
			if i == features.ColClose {
				continue
			}
			dest = append(dest, &r.Features[i])
		}
		dest = append(dest, &r.ForwardReturn, &r.ExcessReturn, &r.Target)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		r.Features[features.ColClose] = r.Close
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateLabels 在一个事务内原地改写 target 与 excess_return，特征列不变
func UpdateLabels(path string, updates []LabelUpdate) error {
	if err := config.RequireFile(path); err != nil {
		return err
	}
	db, err := open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`UPDATE ` + samplesTable + ` SET target = ?, excess_return = ? WHERE code = ? AND trade_date = ?`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, u := range updates {
		if _, err := stmt.Exec(u.Target, u.ExcessReturn, u.Code, u.Date); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("更新 %s %s 失败: %w", u.Code, u.Date, err)
		}
	}
	return tx.Commit()
}

// FeatureNames 数据集生成时记录的特征列
func FeatureNames(path string) ([]string, error) {
	if err := config.RequireFile(path); err != nil {
		return nil, err
	}
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	var raw string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'feature_names'`).Scan(&raw); err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Summary 统计行数、股票数、日期范围与正样本比例
func Summary(path string) (*Stats, error) {
	if err := config.RequireFile(path); err != nil {
		return nil, err
	}
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	var s Stats
	var first, last sql.NullString
	var ratio sql.NullFloat64
	err = db.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT code), MIN(trade_date), MAX(trade_date), AVG(target) FROM ` + samplesTable).
		Scan(&s.Rows, &s.Codes, &first, &last, &ratio)
	if err != nil {
		return nil, err
	}
	s.FirstDate, s.LastDate, s.PositiveRatio = first.String, last.String, ratio.Float64
	return &s, nil
}

func columnList() []string {
	cols := []string{"code", "trade_date", "close", "pct_chg"}
	for _, name := range features.Names {
		if name == "close" {
			continue
		}
		cols = append(cols, name)
	}
	return append(cols, "forward_return", "excess_return", "target")
}
