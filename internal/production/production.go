// Package production turns input stock into output stock. Every run debits its
// inputs, credits the output, writes the batch and grades it in one
// transaction.
package production

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/andresuchdata/roastery/internal/config"
	"github.com/andresuchdata/roastery/internal/costing"
	"github.com/andresuchdata/roastery/internal/domain"
	"github.com/andresuchdata/roastery/internal/ledger"
	"github.com/andresuchdata/roastery/internal/quality"
	"github.com/andresuchdata/roastery/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// requiredScale is the precision, in kg, of blend component requirements.
const requiredScale = 4

type Config struct {
	SinglePrefix string
	BlendPrefix  string
	Now          func() time.Time
}

// ConfigFrom converts the application settings.
func ConfigFrom(cfg config.ProductionConfig) Config {
	return Config{SinglePrefix: cfg.SinglePrefix, BlendPrefix: cfg.BlendPrefix}
}

type Service struct {
	store    repository.Store
	analyzer *quality.Analyzer
	cfg      Config
}

func NewService(store repository.Store, analyzer *quality.Analyzer, cfg Config) *Service {
	if cfg.SinglePrefix == "" {
		cfg.SinglePrefix = "R"
	}
	if cfg.BlendPrefix == "" {
		cfg.BlendPrefix = "B"
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{store: store, analyzer: analyzer, cfg: cfg}
}

// RoastRequest roasts one input item into a profile of it.
type RoastRequest struct {
	InputItemID    int64           `json:"input_item_id"`
	InputQuantity  decimal.Decimal `json:"input_quantity"`
	OutputQuantity decimal.Decimal `json:"output_quantity"`
	Profile        string          `json:"profile"`
	Notes          string          `json:"notes"`
}

// BlendRequest roasts a recipe. With ExplicitInputQuantity the components are
// apportioned from it; otherwise from TargetOutputQuantity grossed up by each
// component's expected loss.
type BlendRequest struct {
	RecipeID              int64            `json:"recipe_id"`
	TargetOutputQuantity  decimal.Decimal  `json:"target_output_quantity"`
	ExplicitInputQuantity *decimal.Decimal `json:"explicit_input_quantity,omitempty"`
	Notes                 string           `json:"notes"`
}

// InputUsage is what one input contributed to a run.
type InputUsage struct {
	ItemID       int64           `json:"item_id"`
	ItemName     string          `json:"item_name"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	Layers       []costing.Layer `json:"layers"`
	UsedFallback bool            `json:"used_fallback"`
	Shortfall    decimal.Decimal `json:"shortfall"`
}

// Result is a committed production run.
type Result struct {
	Batch        *domain.Batch          `json:"batch"`
	OutputItem   *domain.Item           `json:"output_item"`
	Inputs       []InputUsage           `json:"inputs"`
	Warning      *domain.QualityWarning `json:"warning,omitempty"`
	CostWarnings []string               `json:"cost_warnings"`
	UsedFallback bool                   `json:"used_fallback"`
	Stage        domain.Stage           `json:"stage"`
}

type plannedInput struct {
	item *domain.Item
	qty  decimal.Decimal
}

type run struct {
	kind      domain.BatchKind
	prefix    string
	recipeID  *int64
	inputs    []plannedInput
	template  outputTemplate
	output    *domain.Item
	outputQty decimal.Decimal
	notes     string
	stage     domain.Stage
}

// RoastSingle roasts InputQuantity of one item into OutputQuantity of its
// profile item.
func (s *Service) RoastSingle(ctx context.Context, req RoastRequest) (*Result, error) {
	if !req.InputQuantity.IsPositive() {
		return nil, domain.InvalidQuantity("input_quantity", req.InputQuantity)
	}
	if !req.OutputQuantity.IsPositive() {
		return nil, domain.InvalidQuantity("output_quantity", req.OutputQuantity)
	}
	profile := domain.NormalizeProfile(req.Profile)
	if profile == "" {
		return nil, fmt.Errorf("%w: profile is required", domain.ErrInvalidRequest)
	}

	r := &run{
		kind:      domain.BatchSingle,
		prefix:    s.cfg.SinglePrefix,
		outputQty: req.OutputQuantity,
		notes:     req.Notes,
	}

	var result *Result
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		// 1. Load the input and the output it maps to
		input, err := tx.GetItem(ctx, req.InputItemID)
		if err != nil {
			return err
		}
		r.template = singleOutput(input, profile)

		// 2. Lock and check stock
		if err := s.lock(ctx, tx, r, input.ID); err != nil {
			return err
		}
		if input, err = tx.GetItem(ctx, input.ID); err != nil {
			return err
		}
		if input.Quantity.LessThan(req.InputQuantity) {
			return &domain.InsufficientStockError{
				ItemID:    input.ID,
				ItemName:  input.Name,
				Required:  req.InputQuantity,
				Available: input.Quantity,
			}
		}
		r.inputs = []plannedInput{{item: input, qty: req.InputQuantity}}
		r.stage = domain.StageValidated

		result, err = s.execute(ctx, tx, r)
		return err
	})
	if err != nil {
		log.Warn().Err(err).Int64("item_id", req.InputItemID).Str("stage", string(r.stage)).Msg("single roast aborted")
		return nil, err
	}

	s.logResult(result)
	return result, nil
}

// RoastBlend roasts every component of a recipe into the recipe's blend item.
func (s *Service) RoastBlend(ctx context.Context, req BlendRequest) (*Result, error) {
	if !req.TargetOutputQuantity.IsPositive() {
		return nil, domain.InvalidQuantity("target_output_quantity", req.TargetOutputQuantity)
	}
	if req.ExplicitInputQuantity != nil && !req.ExplicitInputQuantity.IsPositive() {
		return nil, domain.InvalidQuantity("explicit_input_quantity", *req.ExplicitInputQuantity)
	}

	r := &run{
		kind:      domain.BatchBlend,
		prefix:    s.cfg.BlendPrefix,
		outputQty: req.TargetOutputQuantity,
		notes:     req.Notes,
	}

	var result *Result
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		// 1. Load the recipe, its components and the blend item
		recipe, err := tx.GetRecipe(ctx, req.RecipeID)
		if err != nil {
			return err
		}
		if len(recipe.Components) == 0 {
			return fmt.Errorf("%w: recipe %d", domain.ErrEmptyRecipe, recipe.ID)
		}
		r.recipeID = &recipe.ID

		items := make(map[int64]*domain.Item, len(recipe.Components))
		for _, c := range recipe.Components {
			item, err := tx.GetItem(ctx, c.ItemID)
			if err != nil {
				return err
			}
			items[c.ItemID] = item
		}
		r.template = blendOutput(recipe, items)

		// 2. Lock every component, then check all of them before touching any
		if err := s.lock(ctx, tx, r, recipe.ItemIDs()...); err != nil {
			return err
		}
		if r.output != nil {
			if _, ok := items[r.output.ID]; ok {
				return fmt.Errorf("%w: recipe %d consumes its own blend", domain.ErrInvalidRecipe, recipe.ID)
			}
		}
		for _, c := range recipe.Components {
			item, err := tx.GetItem(ctx, c.ItemID)
			if err != nil {
				return err
			}
			required, err := componentRequirement(req, c, item)
			if err != nil {
				return err
			}
			if item.Quantity.LessThan(required) {
				return &domain.InsufficientStockError{
					ItemID:    item.ID,
					ItemName:  item.Name,
					Required:  required,
					Available: item.Quantity,
				}
			}
			r.inputs = append(r.inputs, plannedInput{item: item, qty: required})
		}
		r.stage = domain.StageValidated

		result, err = s.execute(ctx, tx, r)
		return err
	})
	if err != nil {
		log.Warn().Err(err).Int64("recipe_id", req.RecipeID).Str("stage", string(r.stage)).Msg("blend roast aborted")
		return nil, err
	}

	s.logResult(result)
	return result, nil
}

// componentRequirement is the input mass one recipe component needs. A
// component without an expected loss is grossed up by nothing here, unlike
// the quality analyzer which grades it against its configured default.
func componentRequirement(req BlendRequest, c domain.RecipeComponent, item *domain.Item) (decimal.Decimal, error) {
	if req.ExplicitInputQuantity != nil {
		return req.ExplicitInputQuantity.Mul(c.Proportion).Round(requiredScale), nil
	}

	loss := item.ExpectedLossOr(decimal.Zero)
	keep := decimal.NewFromInt(1).Sub(loss)
	if !keep.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: item %d has expected loss %s", domain.ErrInvalidRequest, item.ID, loss)
	}
	return req.TargetOutputQuantity.Mul(c.Proportion).Div(keep).Round(requiredScale), nil
}

// lock takes the input locks in id order, then the output. The output row is
// read only once its lock is held, so r.output reflects every run committed
// before this one.
func (s *Service) lock(ctx context.Context, tx repository.Tx, r *run, inputIDs ...int64) error {
	ids := append([]int64(nil), inputIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if err := tx.LockItems(ctx, ids...); err != nil {
		return err
	}

	// Serialises creation of an output that does not exist yet.
	if err := tx.LockKey(ctx, outputLockKey(r.template)); err != nil {
		return err
	}
	output, err := findOutput(ctx, tx, r.template)
	if err != nil {
		return err
	}
	r.output = nil
	if output == nil {
		return nil
	}
	if err := tx.LockItems(ctx, output.ID); err != nil {
		return err
	}
	r.output, err = tx.GetItem(ctx, output.ID)
	return err
}

// execute costs, posts, batches and grades a validated run.
func (s *Service) execute(ctx context.Context, tx repository.Tx, r *run) (*Result, error) {
	at := s.cfg.Now()
	result := &Result{CostWarnings: []string{}}

	// 3. Cost every input against its FIFO layers
	totalInput, totalCost := decimal.Zero, decimal.Zero
	for _, in := range r.inputs {
		res, err := costing.Consume(ctx, tx, in.item.ID, in.qty)
		if err != nil {
			return nil, err
		}
		result.Inputs = append(result.Inputs, InputUsage{
			ItemID:       in.item.ID,
			ItemName:     in.item.Name,
			Quantity:     in.qty,
			UnitCost:     res.UnitCost,
			TotalCost:    res.TotalCost,
			Layers:       res.Layers,
			UsedFallback: res.UsedFallback,
			Shortfall:    res.Shortfall,
		})
		if res.UsedFallback {
			result.UsedFallback = true
			result.CostWarnings = append(result.CostWarnings, res.Warning())
		}
		totalInput = totalInput.Add(in.qty)
		totalCost = totalCost.Add(res.TotalCost)
	}
	unitCost := totalCost.Div(r.outputQty)
	r.stage = domain.StageCosted

	// 4. Resolve the output item and write the batch the entries point at
	output := r.output
	if output == nil {
		var err error
		if output, err = createOutput(ctx, tx, r.template, unitCost, at); err != nil {
			return nil, err
		}
	}

	number, err := allocateBatchNumber(ctx, tx, r.prefix, at)
	if err != nil {
		return nil, err
	}
	batch := &domain.Batch{
		BatchNumber:    number,
		Kind:           r.kind,
		OutputItemID:   output.ID,
		RecipeID:       r.recipeID,
		InputQuantity:  totalInput,
		OutputQuantity: r.outputQty,
		YieldLoss:      domain.YieldLossPercent(totalInput, r.outputQty),
		ProductionCost: totalCost,
		ProducedAt:     at,
		Notes:          r.notes,
	}
	if err := tx.InsertBatch(ctx, batch); err != nil {
		return nil, err
	}

	// 5. Debit inputs, credit output at the reblended average
	for i, in := range r.inputs {
		usage := result.Inputs[i]
		if _, err := ledger.Post(ctx, tx, ledger.PostRequest{
			ItemID:     in.item.ID,
			ChangeType: domain.ChangeProductionInput,
			Delta:      in.qty.Neg(),
			UnitCost:   usage.UnitCost,
			BatchID:    &batch.ID,
			Note:       fmt.Sprintf("batch %s input", number),
		}, at); err != nil {
			return nil, err
		}
	}

	avg := ledger.WeightedAverage(output.Quantity, output.AvgCost, r.outputQty, unitCost)
	if _, err := ledger.Post(ctx, tx, ledger.PostRequest{
		ItemID:     output.ID,
		ChangeType: domain.ChangeProductionOutput,
		Delta:      r.outputQty,
		UnitCost:   unitCost,
		BatchID:    &batch.ID,
		Note:       fmt.Sprintf("batch %s output", number),
		AvgCost:    &avg,
	}, at); err != nil {
		return nil, err
	}
	r.stage = domain.StagePosted

	if output, err = tx.GetItem(ctx, output.ID); err != nil {
		return nil, err
	}
	r.stage = domain.StageBatched

	// 6. Grade the batch
	warning, err := s.analyzer.Evaluate(ctx, tx, batch, output)
	if err != nil {
		return nil, err
	}
	r.stage = domain.StageQualityChecked

	result.Batch = batch
	result.OutputItem = output
	result.Warning = warning
	result.Stage = r.stage
	return result, nil
}

func (s *Service) logResult(result *Result) {
	event := log.Info()
	if result.UsedFallback {
		event = log.Warn().Strs("cost_warnings", result.CostWarnings)
	}
	event.
		Str("batch_number", result.Batch.BatchNumber).
		Int64("output_item_id", result.Batch.OutputItemID).
		Str("input_quantity", result.Batch.InputQuantity.String()).
		Str("output_quantity", result.Batch.OutputQuantity.String()).
		Str("yield_loss", result.Batch.YieldLoss.String()).
		Str("production_cost", result.Batch.ProductionCost.String()).
		Bool("warning", result.Warning != nil).
		Str("stage", string(result.Stage)).
		Msg("production batch completed")
}
