package api

import (
	"testing"

	"bitbucket.org/mmdatafocus/recipes_backend/models"
)

func TestAddIngredientRequest_ToInput(t *testing.T) {
	itemId := 7
	cases := []struct {
		name    string
		request addIngredientRequest
		want    string
		wantErr bool
	}{
		{
			name:    "plain amount",
			request: addIngredientRequest{IngredientType: "R", ItemId: &itemId, Amount: "500"},
			want:    "500",
		},
		{
			name:    "four decimal places pass",
			request: addIngredientRequest{IngredientType: "R", ItemId: &itemId, Amount: "12.3456"},
			want:    "12.3456",
		},
		{
			name:    "five decimal places rejected",
			request: addIngredientRequest{IngredientType: "R", ItemId: &itemId, Amount: "12.34567"},
			wantErr: true,
		},
		{
			name:    "non-numeric rejected",
			request: addIngredientRequest{IngredientType: "R", ItemId: &itemId, Amount: "five hundred"},
			wantErr: true,
		},
		{
			name:    "empty rejected",
			request: addIngredientRequest{IngredientType: "R", ItemId: &itemId, Amount: ""},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		input, err := tc.request.toInput()
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected a parse error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if input.Amount.String() != tc.want {
			t.Fatalf("%s: amount expected %s, got %s", tc.name, tc.want, input.Amount.String())
		}
		if input.IngredientType != models.IngredientTypeRaw {
			t.Fatalf("%s: ingredient type expected R, got %s", tc.name, input.IngredientType)
		}
		if input.ItemId == nil || *input.ItemId != itemId {
			t.Fatalf("%s: item id not carried over", tc.name)
		}
	}
}
