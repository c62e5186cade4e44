package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkovalev/emarket/internal/models"
)

func postReview(t *testing.T, env *testEnv, productID uint, userID uint, rating int, text string) int {
	t.Helper()
	rec, _, c := env.doJSONRequest(http.MethodPost, "/api/products/1/review",
		map[string]any{"rating": rating, "review": text}, authCookie(t, userID, "user"))
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(productID))
	require.NoError(t, env.P.CreateOrUpdateReview(c))
	return rec.Code
}

func productRating(t *testing.T, env *testEnv, productID uint) float64 {
	t.Helper()
	var p models.Product
	require.NoError(t, env.DB.First(&p, productID).Error)
	return p.Rating
}

func TestReviewRatingAggregation(t *testing.T) {
	env := newTestEnv(t)
	p := seedProduct(t, env, "keyboard", "49.99", 10)

	require.Equal(t, http.StatusOK, postReview(t, env, p.ID, 7, 5, "great"))
	assert.InDelta(t, 5.0, productRating(t, env, p.ID), 1e-9)

	require.Equal(t, http.StatusOK, postReview(t, env, p.ID, 8, 2, "meh"))
	assert.InDelta(t, 3.5, productRating(t, env, p.ID), 1e-9)

	// posting again replaces the caller's review instead of adding a second
	require.Equal(t, http.StatusOK, postReview(t, env, p.ID, 7, 3, "ok after a month"))
	assert.InDelta(t, 2.5, productRating(t, env, p.ID), 1e-9)

	var count int64
	require.NoError(t, env.DB.Model(&models.ProductReview{}).
		Where("product_id = ?", p.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestReviewValidation(t *testing.T) {
	env := newTestEnv(t)
	p := seedProduct(t, env, "keyboard", "49.99", 10)

	assert.Equal(t, http.StatusBadRequest, postReview(t, env, p.ID, 7, 0, "too low"))
	assert.Equal(t, http.StatusBadRequest, postReview(t, env, p.ID, 7, 6, "too high"))

	rec, _, c := env.doJSONRequest(http.MethodPost, "/api/products/1/review",
		map[string]any{"rating": 4}, authCookie(t, 7, "user"))
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(p.ID))
	require.NoError(t, env.P.CreateOrUpdateReview(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "review text is required")

	assert.Equal(t, http.StatusNotFound, postReview(t, env, 999, 7, 4, "ghost product"))
}

func TestDeleteReviewRecomputesRating(t *testing.T) {
	env := newTestEnv(t)
	p := seedProduct(t, env, "keyboard", "49.99", 10)

	require.Equal(t, http.StatusOK, postReview(t, env, p.ID, 7, 5, "great"))
	require.Equal(t, http.StatusOK, postReview(t, env, p.ID, 8, 1, "broke in a week"))
	assert.InDelta(t, 3.0, productRating(t, env, p.ID), 1e-9)

	rec, _, c := env.doJSONRequest(http.MethodDelete, "/api/products/1/review", nil, authCookie(t, 8, "user"))
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(p.ID))
	require.NoError(t, env.P.DeleteReview(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.InDelta(t, 5.0, productRating(t, env, p.ID), 1e-9)

	// removing the last review resets the aggregate to zero
	rec2, _, c2 := env.doJSONRequest(http.MethodDelete, "/api/products/1/review", nil, authCookie(t, 7, "user"))
	c2.SetParamNames("id")
	c2.SetParamValues(fmt.Sprint(p.ID))
	require.NoError(t, env.P.DeleteReview(c2))
	assert.Equal(t, http.StatusNoContent, rec2.Code)
	assert.Zero(t, productRating(t, env, p.ID))

	// deleting a review that is not there is an error, not a no-op
	rec3, _, c3 := env.doJSONRequest(http.MethodDelete, "/api/products/1/review", nil, authCookie(t, 7, "user"))
	c3.SetParamNames("id")
	c3.SetParamValues(fmt.Sprint(p.ID))
	require.NoError(t, env.P.DeleteReview(c3))
	assert.Equal(t, http.StatusNotFound, rec3.Code)
}
