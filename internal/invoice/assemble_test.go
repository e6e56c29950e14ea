package invoice

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func startPage(fields map[string]any, items ...LineItem) NormalizedResult {
	return OK(PageClassification{IsStart: true, Fields: fields, LineItems: items})
}

func continuationPage(items ...LineItem) NormalizedResult {
	return OK(PageClassification{IsContinuation: true, LineItems: items})
}

func endPage(fields map[string]any, items ...LineItem) NormalizedResult {
	return OK(PageClassification{IsEnd: true, Fields: fields, LineItems: items})
}

func blankPage() NormalizedResult {
	return OK(PageClassification{})
}

var _ = Describe("Assemble", func() {
	var (
		pages    []NormalizedResult
		invoices []CompletedInvoice
	)

	JustBeforeEach(func() {
		invoices = Assemble(pages)
	})

	When("an invoice spans start, continuation and end pages", func() {
		BeforeEach(func() {
			pages = []NormalizedResult{
				startPage(map[string]any{"invoiceNumber": "A"}),
				continuationPage(LineItem{"description": "x", "amount": json.Number("1")}),
				endPage(map[string]any{"totalAmount": json.Number("10")}),
			}
		})

		It("should produce one invoice", func() {
			Expect(invoices).To(HaveLen(1))
		})

		It("should combine fields and line items from every page", func() {
			out, err := json.Marshal(invoices[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(MatchJSON(`{"invoiceNumber":"A","lineItems":[{"description":"x","amount":1}],"totalAmount":10}`))
		})
	})

	When("two start pages arrive without an end page", func() {
		BeforeEach(func() {
			pages = []NormalizedResult{
				startPage(map[string]any{"invoiceNumber": "A"}),
				startPage(map[string]any{"invoiceNumber": "B"}),
			}
		})

		It("should close the first and flush the second", func() {
			Expect(invoices).To(HaveLen(2))
			Expect(invoices[0].Field("invoiceNumber")).To(Equal("A"))
			Expect(invoices[1].Field("invoiceNumber")).To(Equal("B"))
		})
	})

	When("no page ever starts an invoice", func() {
		BeforeEach(func() {
			pages = []NormalizedResult{
				continuationPage(LineItem{"description": "orphan"}),
				endPage(map[string]any{"totalAmount": json.Number("5")}),
				blankPage(),
			}
		})

		It("should produce no invoices", func() {
			Expect(invoices).To(BeEmpty())
		})
	})

	When("the document has no pages", func() {
		BeforeEach(func() {
			pages = nil
		})

		It("should produce an empty, non-nil list", func() {
			Expect(invoices).NotTo(BeNil())
			Expect(invoices).To(BeEmpty())
		})
	})

	When("a page failed to classify", func() {
		BeforeEach(func() {
			pages = []NormalizedResult{
				startPage(map[string]any{"invoiceNumber": "A"}, LineItem{"description": "one"}),
				Failed("no JSON object found"),
				continuationPage(LineItem{"description": "two"}),
			}
		})

		It("should skip the failed page and keep going", func() {
			Expect(invoices).To(HaveLen(1))
			Expect(invoices[0].LineItems()).To(Equal([]LineItem{
				{"description": "one"},
				{"description": "two"},
			}))
		})
	})

	When("the end page carries null values", func() {
		BeforeEach(func() {
			pages = []NormalizedResult{
				startPage(map[string]any{"invoiceNumber": "A", "vendorName": "Acme", "tax": json.Number("1")}),
				endPage(map[string]any{"vendorName": nil, "tax": json.Number("2"), "dueDate": "2024-02-01"}),
			}
		})

		It("should not erase existing values with null", func() {
			Expect(invoices[0].Field("vendorName")).To(Equal("Acme"))
		})

		It("should overwrite existing values with non-null ones", func() {
			Expect(invoices[0].Field("tax")).To(Equal(json.Number("2")))
			Expect(invoices[0].Field("dueDate")).To(Equal("2024-02-01"))
		})
	})

	When("a continuation page repeats a scalar field", func() {
		BeforeEach(func() {
			pages = []NormalizedResult{
				startPage(map[string]any{"invoiceNumber": "A"}),
				OK(PageClassification{IsContinuation: true, Fields: map[string]any{"invoiceNumber": "Z"}}),
			}
		})

		It("should keep the value from the start page", func() {
			Expect(invoices[0].Field("invoiceNumber")).To(Equal("A"))
		})
	})

	When("start and continuation flags are both set", func() {
		BeforeEach(func() {
			pages = []NormalizedResult{
				startPage(map[string]any{"invoiceNumber": "A"}),
				OK(PageClassification{IsStart: true, IsContinuation: true, Fields: map[string]any{"invoiceNumber": "B"}}),
			}
		})

		It("should treat the page as a new invoice", func() {
			Expect(invoices).To(HaveLen(2))
			Expect(invoices[1].Field("invoiceNumber")).To(Equal("B"))
		})
	})

	When("start and end flags are set on the same page", func() {
		BeforeEach(func() {
			pages = []NormalizedResult{
				OK(PageClassification{
					IsStart:   true,
					IsEnd:     true,
					Fields:    map[string]any{"invoiceNumber": "A", "totalAmount": json.Number("3")},
					LineItems: []LineItem{{"description": "x"}},
				}),
				continuationPage(LineItem{"description": "late"}),
			}
		})

		It("should start and then close the invoice on that page", func() {
			Expect(invoices).To(HaveLen(1))
			Expect(invoices[0].Field("totalAmount")).To(Equal(json.Number("3")))
		})

		It("should not count the page's line items twice", func() {
			Expect(invoices[0].LineItems()).To(Equal([]LineItem{{"description": "x"}}))
		})
	})

	When("the end page lists line items of its own", func() {
		BeforeEach(func() {
			pages = []NormalizedResult{
				startPage(map[string]any{"invoiceNumber": "A"}, LineItem{"description": "one"}),
				endPage(map[string]any{"totalAmount": json.Number("9")}, LineItem{"description": "two"}),
			}
		})

		It("should append them after the existing items", func() {
			Expect(invoices[0].LineItems()).To(Equal([]LineItem{
				{"description": "one"},
				{"description": "two"},
			}))
		})
	})

	When("a start page carries no data at all", func() {
		BeforeEach(func() {
			pages = []NormalizedResult{
				OK(PageClassification{IsStart: true}),
			}
		})

		It("should not emit an empty invoice", func() {
			Expect(invoices).To(BeEmpty())
		})
	})

	Describe("no-op pages", func() {
		base := []NormalizedResult{
			startPage(map[string]any{"invoiceNumber": "A"}, LineItem{"description": "a1"}),
			continuationPage(LineItem{"description": "a2"}),
			endPage(map[string]any{"totalAmount": json.Number("3")}),
			startPage(map[string]any{"invoiceNumber": "B"}),
			continuationPage(LineItem{"description": "b1"}),
		}

		It("should yield identical invoices wherever an empty page is inserted", func() {
			want := Assemble(base)
			for pos := 0; pos <= len(base); pos++ {
				withBlank := make([]NormalizedResult, 0, len(base)+1)
				withBlank = append(withBlank, base[:pos]...)
				withBlank = append(withBlank, blankPage())
				withBlank = append(withBlank, base[pos:]...)
				Expect(Assemble(withBlank)).To(Equal(want), "blank page at %d", pos)
			}
		})

		It("should ignore a page flagged only as blank", func() {
			want := Assemble(base)
			withBlank := append([]NormalizedResult{OK(PageClassification{IsBlank: true})}, base...)
			Expect(Assemble(withBlank)).To(Equal(want))
		})
	})

	Describe("invoice count bounds", func() {
		It("should never exceed the start pages plus one flush", func() {
			sequences := [][]NormalizedResult{
				{startPage(map[string]any{"a": "1"}), startPage(map[string]any{"a": "2"}), endPage(nil)},
				{endPage(map[string]any{"a": "1"}), continuationPage(LineItem{"d": "x"})},
				{startPage(map[string]any{"a": "1"}), endPage(nil), endPage(nil), startPage(map[string]any{"a": "2"})},
			}
			for _, seq := range sequences {
				starts := 0
				for _, p := range seq {
					if !p.IsError() && p.Page.IsStart {
						starts++
					}
				}
				Expect(len(Assemble(seq))).To(BeNumerically("<=", starts+1))
			}
		})
	})
})

var _ = Describe("CompletedInvoice", func() {
	It("should not be affected by changes to the source data", func() {
		fields := map[string]any{"invoiceNumber": "A"}
		items := []LineItem{{"description": "x"}}
		inv := NewCompletedInvoice(fields, items)

		fields["invoiceNumber"] = "B"
		items[0]["description"] = "y"

		Expect(inv.Field("invoiceNumber")).To(Equal("A"))
		Expect(inv.LineItems()[0]).To(HaveKeyWithValue("description", "x"))
	})

	It("should round-trip through JSON", func() {
		inv := NewCompletedInvoice(
			map[string]any{"invoiceNumber": "A", "totalAmount": json.Number("10.50")},
			[]LineItem{{"description": "x", "amount": json.Number("1")}},
		)
		out, err := json.Marshal(inv)
		Expect(err).NotTo(HaveOccurred())

		var back CompletedInvoice
		Expect(json.Unmarshal(out, &back)).To(Succeed())
		Expect(back).To(Equal(inv))
	})

	It("should always write a lineItems array", func() {
		out, err := json.Marshal(NewCompletedInvoice(map[string]any{"invoiceNumber": "A"}, nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(MatchJSON(`{"invoiceNumber":"A","lineItems":[]}`))
	})

	It("should write markup characters as plain text", func() {
		inv := NewCompletedInvoice(map[string]any{"vendorName": "A & B <Ltd>"}, nil)
		out, err := inv.MarshalJSON()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(ContainSubstring(`"A & B <Ltd>"`))
		Expect(string(out)).NotTo(HaveSuffix("\n"))
	})
})
