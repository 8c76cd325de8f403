package defense

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func testLimits() Limits {
	return Limits{
		BodyDefault:   4000,
		QueryDefault:  256,
		ParamsDefault: 128,
		FieldLimits:   map[string]int{"name": 100},
	}
}

func TestCheckFieldOverrideBeatsLocationDefault(t *testing.T) {
	limits := testLimits()

	// name has a 100-char override even though the body default is 4000.
	violation := limits.Check(BodyGroup(Field{Name: "name", Value: strings.Repeat("a", 101)}))
	if violation == nil {
		t.Fatal("expected a violation")
	}
	if violation.Field != "name" || violation.Limit != 100 || violation.Actual != 101 {
		t.Fatalf("violation = %+v", violation)
	}

	if v := limits.Check(BodyGroup(Field{Name: "name", Value: strings.Repeat("a", 100)})); v != nil {
		t.Fatalf("100 chars should pass, got %+v", v)
	}
}

func TestCheckFailsFastOnFirstViolation(t *testing.T) {
	limits := testLimits()

	violation := limits.Check(
		BodyGroup(
			Field{Name: "message", Value: strings.Repeat("a", 5000)},
			Field{Name: "name", Value: strings.Repeat("b", 500)},
		),
	)
	if violation == nil {
		t.Fatal("expected a violation")
	}
	// message comes first in declaration order, so it wins even though
	// name also violates.
	if violation.Field != "message" {
		t.Fatalf("violation field = %s, want message", violation.Field)
	}
}

func TestCheckGroupOrderBodyQueryParams(t *testing.T) {
	limits := testLimits()

	violation := limits.Check(
		BodyGroup(Field{Name: "message", Value: "short"}),
		QueryGroup(Field{Name: "q", Value: strings.Repeat("a", 300)}),
		ParamsGroup(Field{Name: "id", Value: strings.Repeat("b", 300)}),
	)
	if violation == nil {
		t.Fatal("expected a violation")
	}
	if violation.Location != LocationQuery || violation.Field != "q" {
		t.Fatalf("violation = %+v, want query/q first", violation)
	}
}

func TestCheckPassesCleanRequest(t *testing.T) {
	limits := testLimits()
	violation := limits.Check(
		BodyGroup(Field{Name: "message", Value: "hello"}),
		QueryGroup(Field{Name: "page", Value: "1"}),
		ParamsGroup(),
	)
	if violation != nil {
		t.Fatalf("unexpected violation: %+v", violation)
	}
}

func TestViolationMessageFormat(t *testing.T) {
	v := &Violation{Field: "name", Location: LocationBody, Limit: 100, Actual: 101}
	want := "field name in body exceeds limit of 100 characters (received 101)"
	if v.Error() != want {
		t.Fatalf("message = %q, want %q", v.Error(), want)
	}
}

func TestMiddlewareRejectsOversizedQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(testLimits()))
	router.GET("/status", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status?q="+strings.Repeat("a", 300), nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "exceeds limit of 256") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestMiddlewarePassesCleanRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(testLimits()))
	router.GET("/status", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status?q=ok", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCheckCountsCharactersNotBytes(t *testing.T) {
	limits := testLimits()

	// Each rune below is three bytes in UTF-8; the limit is on characters.
	if v := limits.Check(BodyGroup(Field{Name: "name", Value: strings.Repeat("界", 100)})); v != nil {
		t.Fatalf("100 multibyte chars should pass, got %+v", v)
	}

	violation := limits.Check(BodyGroup(Field{Name: "name", Value: strings.Repeat("界", 101)}))
	if violation == nil {
		t.Fatal("expected a violation")
	}
	if violation.Actual != 101 {
		t.Fatalf("actual = %d, want 101 characters", violation.Actual)
	}
}

func TestMiddlewareReportsFirstQueryFieldInWireOrder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(testLimits()))
	router.GET("/status", func(c *gin.Context) { c.Status(http.StatusOK) })

	long := strings.Repeat("a", 300)
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/status?zeta="+long+"&alpha="+long, nil)
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("status = %d, want 413", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "field zeta in query") {
			t.Fatalf("expected zeta reported first, body = %s", rec.Body.String())
		}
	}
}
