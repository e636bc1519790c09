package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ctshub/internal/domain/artifact"
	applog "ctshub/internal/platform/log"
)

// Searcher 外部调查能力。异步执行，返回不透明的结果 payload 或错误。
// orchestrator 不解析 payload，只原样落库。
type Searcher func(ctx context.Context, fp artifact.Fingerprint, file *FileResource) (json.RawMessage, error)

// Status 一次请求的处理结论。
type Status string

const (
	// StatusLaunched 已为该 fingerprint 启动新调查
	StatusLaunched Status = "launched"
	// StatusInProgress 该 fingerprint 已有进行中的调查
	StatusInProgress Status = "in_progress"
	// StatusFound 已有存量结果，直接返回
	StatusFound Status = "found"
)

// Outcome 请求的处理结果。Hit 仅在 StatusFound 时有值。
type Outcome struct {
	Status   Status          `json:"status"`
	SearchID string          `json:"search_id,omitempty"`
	Hit      json.RawMessage `json:"hit,omitempty"`
}

// Orchestrator 搜索去重与完成协调器。
//
// 对每个入站 fingerprint 决定：返回存量结果、引用进行中的调查、
// 或启动新调查并在其完成时恰好一次地落库结果、清除 marker、释放临时文件。
type Orchestrator struct {
	results  *ResultStore
	active   *ActiveSearchRegistry
	searcher Searcher
	cache    ResultCache // 可选

	reactionTimeout time.Duration

	// onComplete 完成回调，仅测试使用
	onComplete func(searchID string)
}

// NewOrchestrator 创建 orchestrator。
func NewOrchestrator(store Store, searcher Searcher) *Orchestrator {
	return &Orchestrator{
		results:         NewResultStore(store),
		active:          NewActiveSearchRegistry(store),
		searcher:        searcher,
		reactionTimeout: 30 * time.Second,
	}
}

// SetCache 设置可选的结果读缓存。
func (o *Orchestrator) SetCache(cache ResultCache) {
	o.cache = cache
}

// Submit 处理一次调查请求。file 可为 nil；无论走哪个分支，
// file 都保证恰好释放一次：立即返回的分支同步释放，
// 启动新调查的分支由完成回调释放。
func (o *Orchestrator) Submit(ctx context.Context, fp artifact.Fingerprint, file *FileResource) (*Outcome, error) {
	if fp.Type == "" || fp.Value == "" {
		file.Release()
		return nil, artifact.ErrEmptyField
	}

	if o.cache != nil {
		if hit, ok := o.cache.Get(ctx, fp); ok {
			applog.Debug("[Orchestrator] Result cache hit", "fingerprint", fp.String())
			file.Release()
			return &Outcome{Status: StatusFound, Hit: hit}, nil
		}
	}

	// 并发查询结果表和 active searches 表，两者都返回后才分支
	var (
		results []*ResultRecord
		actives []*ActiveSearchRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		results, err = o.results.Find(gctx, Query{Fingerprint: &fp})
		return err
	})
	g.Go(func() error {
		var err error
		actives, err = o.active.Find(gctx, Query{Fingerprint: &fp})
		return err
	})
	if err := g.Wait(); err != nil {
		file.Release()
		return nil, fmt.Errorf("lookup for %s: %w", fp.String(), err)
	}

	// 决策表：存量结果优先，其次进行中的调查，否则启动新调查
	if len(results) > 0 {
		file.Release()
		first := results[0]
		if o.cache != nil {
			o.cache.Set(ctx, fp, first.Hit)
		}
		applog.Info("[Orchestrator] Returning stored result", "fingerprint", fp.String(), "search_id", first.SearchID)
		return &Outcome{Status: StatusFound, SearchID: first.SearchID, Hit: first.Hit}, nil
	}

	if len(actives) > 0 {
		// 同一 fingerprint 出现多个 marker 时引用最早的一个
		file.Release()
		applog.Info("[Orchestrator] Joining in-flight search", "fingerprint", fp.String(), "search_id", actives[0].SearchID)
		return &Outcome{Status: StatusInProgress, SearchID: actives[0].SearchID}, nil
	}

	return o.launch(ctx, fp, file)
}

// launch 注册 marker 并异步启动 searcher。
func (o *Orchestrator) launch(ctx context.Context, fp artifact.Fingerprint, file *FileResource) (*Outcome, error) {
	searchID, err := o.active.Register(ctx, fp)
	if errors.Is(err, ErrDuplicateActiveSearch) {
		// 查询和注册之间有并发请求抢先注册了 marker：
		// 唯一约束把这个竞态折叠进 join 路径
		file.Release()
		return o.joinAfterConflict(ctx, fp)
	}
	if err != nil {
		file.Release()
		return nil, fmt.Errorf("register active search for %s: %w", fp.String(), err)
	}

	applog.Info("[Orchestrator] Launching search", "fingerprint", fp.String(), "search_id", searchID)
	go o.run(searchID, fp, file)

	return &Outcome{Status: StatusLaunched, SearchID: searchID}, nil
}

// joinAfterConflict 注册撞到唯一约束后重查。marker 可能在重查前
// 已经完成并删除，此时改查结果表。
func (o *Orchestrator) joinAfterConflict(ctx context.Context, fp artifact.Fingerprint) (*Outcome, error) {
	actives, err := o.active.Find(ctx, Query{Fingerprint: &fp})
	if err != nil {
		return nil, fmt.Errorf("join in-flight search for %s: %w", fp.String(), err)
	}
	if len(actives) > 0 {
		applog.Info("[Orchestrator] Registration conflict, joining in-flight search", "fingerprint", fp.String(), "search_id", actives[0].SearchID)
		return &Outcome{Status: StatusInProgress, SearchID: actives[0].SearchID}, nil
	}

	results, err := o.results.Find(ctx, Query{Fingerprint: &fp})
	if err != nil {
		return nil, fmt.Errorf("join in-flight search for %s: %w", fp.String(), err)
	}
	if len(results) > 0 {
		return &Outcome{Status: StatusFound, SearchID: results[0].SearchID, Hit: results[0].Hit}, nil
	}
	return nil, fmt.Errorf("active search for %s vanished after registration conflict", fp.String())
}

// Lookup 按 search_id 解析一次调查的当前状态。
// 既不在结果表也不在 active searches 中时返回 ErrUnknownSearchID。
func (o *Orchestrator) Lookup(ctx context.Context, searchID string) (*Outcome, error) {
	results, err := o.results.Find(ctx, Query{SearchID: searchID})
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		return &Outcome{Status: StatusFound, SearchID: searchID, Hit: results[0].Hit}, nil
	}

	actives, err := o.active.Find(ctx, Query{SearchID: searchID})
	if err != nil {
		return nil, err
	}
	if len(actives) > 0 {
		return &Outcome{Status: StatusInProgress, SearchID: searchID}, nil
	}
	return nil, ErrUnknownSearchID
}

// run 执行 searcher 并触发完成回调。请求协程不等待它。
// searcher 的错误不向外传播，而是转成 error payload 落库，
// 保证 marker 总能被清除。
func (o *Orchestrator) run(searchID string, fp artifact.Fingerprint, file *FileResource) {
	hit, err := o.searcher(context.Background(), fp, file)
	if err != nil {
		applog.Error("[Orchestrator] Searcher failed", "search_id", searchID, "fingerprint", fp.String(), "error", err)
		hit, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	o.complete(searchID, fp, hit, file)
}

// complete 完成回调：落库结果、删除 marker、释放临时文件。
// 三步相互独立，任何一步失败都不阻止其余两步执行，
// 否则一次写入失败会永久留下孤儿 marker 和泄漏的文件。
func (o *Orchestrator) complete(searchID string, fp artifact.Fingerprint, hit json.RawMessage, file *FileResource) {
	ctx, cancel := context.WithTimeout(context.Background(), o.reactionTimeout)
	defer cancel()

	rec := &ResultRecord{SearchID: searchID, Fingerprint: fp, Hit: hit}
	if err := o.results.Record(ctx, rec); err != nil {
		applog.Error("[Orchestrator] Failed to store search result", "search_id", searchID, "error", err)
	} else {
		if o.cache != nil {
			o.cache.Set(ctx, fp, hit)
		}
		applog.Info("[Orchestrator] Search result stored", "search_id", searchID, "fingerprint", fp.String())
	}

	if err := o.active.Remove(ctx, searchID); err != nil {
		applog.Error("[Orchestrator] Failed to remove active search", "search_id", searchID, "error", err)
	}

	file.Release()

	if o.onComplete != nil {
		o.onComplete(searchID)
	}
}
