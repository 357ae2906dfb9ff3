package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/jam3a-shop/api/internal/domain"
)

func newTestCatalogService(t *testing.T, catalog *memCatalogRepo) CatalogService {
	t.Helper()
	svc, err := NewCatalogService(CatalogServiceDeps{Catalog: catalog})
	if err != nil {
		t.Fatalf("NewCatalogService returned error: %v", err)
	}
	return svc
}

func TestSaveCategoryStripsMarkup(t *testing.T) {
	catalog := newMemCatalogRepo()
	svc := newTestCatalogService(t, catalog)

	saved, err := svc.SaveCategory(context.Background(), SaveCategoryCommand{
		Name: domain.LocalizedText{
			Ar: "<b>أدوات منزلية</b>",
			En: "Home <script>alert(1)</script> goods",
		},
		Active: true,
	})
	if err != nil {
		t.Fatalf("SaveCategory returned error: %v", err)
	}
	if saved.Name.Ar != "أدوات منزلية" {
		t.Fatalf("expected Arabic markup stripped, got %q", saved.Name.Ar)
	}
	if saved.Name.En != "Home  goods" {
		t.Fatalf("expected script stripped, got %q", saved.Name.En)
	}
	if saved.ID == "" {
		t.Fatalf("expected repository to assign an id")
	}
}

func TestSaveCategoryValidation(t *testing.T) {
	catalog := newMemCatalogRepo()
	svc := newTestCatalogService(t, catalog)
	ctx := context.Background()

	// A name that is nothing but markup sanitises to empty.
	if _, err := svc.SaveCategory(ctx, SaveCategoryCommand{Name: domain.LocalizedText{En: "<img src=x>"}}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput for empty name, got %v", err)
	}
	if _, err := svc.SaveCategory(ctx, SaveCategoryCommand{Name: domain.LocalizedText{En: "Home"}, SortOrder: -1}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput for negative sort order, got %v", err)
	}
}

func TestSaveProductValidatesCategoryAndSchedule(t *testing.T) {
	catalog := newMemCatalogRepo()
	svc := newTestCatalogService(t, catalog)
	ctx := context.Background()

	base := SaveProductCommand{
		CategoryID: "cat-1",
		Name:       domain.LocalizedText{En: "Dinner set"},
		BasePrice:  4999,
		Currency:   "sar",
		Schedule: domain.DiscountSchedule{
			{MinCount: 3, Price: 4799},
			{MinCount: 5, Price: 4599},
		},
		Active: true,
	}

	if _, err := svc.SaveProduct(ctx, base); !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound before category exists, got %v", err)
	}

	if _, err := catalog.SaveCategory(ctx, domain.Category{ID: "cat-1", Name: domain.LocalizedText{En: "Home"}, Active: true}); err != nil {
		t.Fatalf("seed category: %v", err)
	}

	saved, err := svc.SaveProduct(ctx, base)
	if err != nil {
		t.Fatalf("SaveProduct returned error: %v", err)
	}
	if saved.Currency != "SAR" {
		t.Fatalf("expected currency uppercased, got %q", saved.Currency)
	}

	for name, mutate := range map[string]func(*SaveProductCommand){
		"currency too long":      func(cmd *SaveProductCommand) { cmd.Currency = "RIYAL" },
		"tier above base price":  func(cmd *SaveProductCommand) { cmd.Schedule = domain.DiscountSchedule{{MinCount: 3, Price: 5200}} },
		"thresholds out of order": func(cmd *SaveProductCommand) {
			cmd.Schedule = domain.DiscountSchedule{{MinCount: 5, Price: 4799}, {MinCount: 3, Price: 4599}}
		},
		"prices increase": func(cmd *SaveProductCommand) {
			cmd.Schedule = domain.DiscountSchedule{{MinCount: 3, Price: 4599}, {MinCount: 5, Price: 4799}}
		},
		"threshold below two": func(cmd *SaveProductCommand) { cmd.Schedule = domain.DiscountSchedule{{MinCount: 1, Price: 4799}} },
	} {
		cmd := base
		mutate(&cmd)
		if _, err := svc.SaveProduct(ctx, cmd); !errors.Is(err, ErrCatalogInvalidInput) {
			t.Fatalf("%s: expected ErrCatalogInvalidInput, got %v", name, err)
		}
	}
}

func TestSaveProductSanitisesTierLabels(t *testing.T) {
	catalog := newMemCatalogRepo()
	svc := newTestCatalogService(t, catalog)
	ctx := context.Background()

	if _, err := catalog.SaveCategory(ctx, domain.Category{ID: "cat-1", Name: domain.LocalizedText{En: "Home"}, Active: true}); err != nil {
		t.Fatalf("seed category: %v", err)
	}

	cmd := SaveProductCommand{
		CategoryID: "cat-1",
		Name:       domain.LocalizedText{En: "Dinner set"},
		BasePrice:  4999,
		Currency:   "SAR",
		Schedule: domain.DiscountSchedule{
			{MinCount: 3, Price: 4799, SavingsLabel: domain.LocalizedText{En: "<em>Save 4%</em>"}},
		},
		Active: true,
	}
	saved, err := svc.SaveProduct(ctx, cmd)
	if err != nil {
		t.Fatalf("SaveProduct returned error: %v", err)
	}
	if saved.Schedule[0].SavingsLabel.En != "Save 4%" {
		t.Fatalf("expected label markup stripped, got %q", saved.Schedule[0].SavingsLabel.En)
	}
	// The caller's schedule slice is untouched.
	if cmd.Schedule[0].SavingsLabel.En != "<em>Save 4%</em>" {
		t.Fatalf("input schedule must not be mutated, got %q", cmd.Schedule[0].SavingsLabel.En)
	}
}

func TestDeleteProductRequiresExistence(t *testing.T) {
	catalog := newMemCatalogRepo()
	svc := newTestCatalogService(t, catalog)
	ctx := context.Background()

	if err := svc.DeleteProduct(ctx, "missing"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if err := svc.DeleteProduct(ctx, "  "); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput for blank id, got %v", err)
	}

	if _, err := catalog.SaveProduct(ctx, testProduct()); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := svc.DeleteProduct(ctx, "prod-1"); err != nil {
		t.Fatalf("DeleteProduct returned error: %v", err)
	}
	if _, err := svc.GetProduct(ctx, "prod-1"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected product gone, got %v", err)
	}
}
