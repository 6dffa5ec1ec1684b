package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Queryer はクエリ実行に必要な最小インターフェース。
// *sql.DBと*sql.Txの両方が満たすため、同一のリポジトリメソッドを
// 単独実行とトランザクション内実行の両方で使用できる。
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx はトランザクションのインターフェース。
// サービス層がテストダブルを注入できるよう*sql.Txを直接公開しない。
type Tx interface {
	Queryer
	Commit() error
	Rollback() error
}

// TxBeginner はトランザクション開始のインターフェース。
// サービス層はグローバルなDBクライアントではなく、このハンドルを注入される。
type TxBeginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// sqlTxBeginner は*sql.DBをTxBeginnerに適合させる。
type sqlTxBeginner struct {
	db *sql.DB
}

// NewTxBeginner は*sql.DBをラップしたTxBeginnerを生成する。
func NewTxBeginner(db *sql.DB) TxBeginner {
	return &sqlTxBeginner{db: db}
}

// Begin はread committed（デフォルト分離レベル）のトランザクションを開始する。
func (b *sqlTxBeginner) Begin(ctx context.Context) (Tx, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// compile-time interface checks
var (
	_ Queryer = (*sql.DB)(nil)
	_ Tx      = (*sql.Tx)(nil)
)
