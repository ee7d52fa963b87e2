// Package archive 把周期任务获取的行情写入 MySQL，供离线分析使用。
// 行情获取本身不依赖归档，未启用时整个包都不会被调用。
package archive

import (
	"context"
	"fmt"
	"time"

	"btc-market-feed/pkg/types"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const batchSize = 100

// Archive 行情归档
type Archive struct {
	db  *gorm.DB
	now func() time.Time
}

// DSN 根据配置生成 MySQL 连接串
func DSN(config types.MySQLConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)
}

// Open 连接 MySQL 并迁移表结构
func Open(config types.MySQLConfig) (*Archive, error) {
	// 配置GORM日志
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(mysql.Open(DSN(config)), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %v", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %v", err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	a := &Archive{db: db, now: time.Now}
	if err := a.db.AutoMigrate(&CandleRow{}, &SnapshotRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("数据库迁移失败: %v", err)
	}

	zap.L().Info("✅ MySQL数据库连接成功",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("database", config.Database))
	return a, nil
}

// SaveSeries 批量保存K线，已存在的 (symbol, granularity, open_time) 按最新数据覆盖
func (a *Archive) SaveSeries(ctx context.Context, s *types.CandleSeries) error {
	rows := CandleRows(s, a.now())
	if len(rows) == 0 {
		return nil
	}

	err := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "granularity"}, {Name: "open_time"}},
			UpdateAll: true,
		}).
		CreateInBatches(rows, batchSize).Error
	if err != nil {
		return fmt.Errorf("批量保存K线失败: %v", err)
	}

	zap.L().Debug("✅ 批量保存K线数据完成",
		zap.String("symbol", s.Symbol),
		zap.String("granularity", string(s.Granularity)),
		zap.Int("count", len(rows)))
	return nil
}

// SaveSnapshot 保存一次实时价格
func (a *Archive) SaveSnapshot(ctx context.Context, s *types.PriceSnapshot) error {
	row := NewSnapshotRow(s, a.now())
	if err := a.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("保存实时价格失败: %v", err)
	}
	return nil
}

// Candles 读取最近 limit 根归档K线，按时间升序返回
func (a *Archive) Candles(ctx context.Context, symbol string, g types.Granularity, limit int) (*types.CandleSeries, error) {
	var rows []CandleRow
	if err := a.candlesQuery(ctx, symbol, g, limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("读取归档K线失败: %v", err)
	}
	return seriesFromRows(symbol, g, rows)
}

func (a *Archive) candlesQuery(ctx context.Context, symbol string, g types.Granularity, limit int) *gorm.DB {
	return a.db.WithContext(ctx).
		Where("symbol = ? AND granularity = ?", symbol, string(g)).
		Order("open_time DESC").
		Limit(limit)
}

// seriesFromRows 归档行按时间倒序读出，数据源取最新一行的
func seriesFromRows(symbol string, g types.Granularity, rows []CandleRow) (*types.CandleSeries, error) {
	candles := make([]types.Candle, len(rows))
	source := ""
	for i, r := range rows {
		candles[i] = r.Candle()
		if i == 0 {
			source = r.Source
		}
	}
	return types.NewCandleSeries(symbol, g, source, candles)
}

// Close 关闭数据库连接
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接健康状态
func (a *Archive) Health(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
