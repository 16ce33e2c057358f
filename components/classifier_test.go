package components

import (
	"context"
	"math/rand"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/failure"
	"github.com/relloyd/stagesync/rdbms"
	"github.com/relloyd/stagesync/stream"
	td "github.com/relloyd/stagesync/table-definition"
	"github.com/sirupsen/logrus"
)

var testWindow = Window{
	Start: time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC),
}

var inWindow = time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC)
var outOfWindow = time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC)

func shiftDescriptor() td.Descriptor {
	return td.NewDescriptor(
		td.Field{Name: "key", Type: td.FieldBigInt},
		td.Field{Name: "start", Type: td.FieldString},
		td.Field{Name: "notes", Type: td.FieldString},
		td.Field{Name: "date", Type: td.FieldDate},
		td.Field{Name: "modified", Type: td.FieldDateTime},
	)
}

func shift(key int64, start string, date time.Time) stream.Record {
	r := stream.NewRecord()
	r.SetData("key", key)
	r.SetData("start", start)
	r.SetData("notes", nil)
	r.SetData("date", date)
	r.SetData("modified", date)
	return r
}

func copyRecs(recs []stream.Record) []stream.Record {
	retval := make([]stream.Record, len(recs))
	for idx, r := range recs {
		retval[idx] = r.Copy()
	}
	return retval
}

func byKey(b *stream.Batch) map[int64]stream.Record {
	retval := make(map[int64]stream.Record)
	for _, r := range b.Records {
		retval[r.GetData("key").(int64)] = r
	}
	return retval
}

var _ = Describe("Classifier", func() {
	var (
		log *logrus.Logger
		ctx context.Context
		cfg *ClassifierConfig
	)

	newApplier := func(prod ProductionStore) *Applier {
		return NewApplier(&ApplierConfig{
			Log:             log,
			Entity:          "Shift",
			Production:      prod,
			ProductionTable: rdbms.NewSchemaTable("dbo", "Shift"),
			Descriptor:      shiftDescriptor(),
			Keys:            []string{"key"},
		})
	}

	classify := func(imported, mirror []stream.Record) (*Classification, error) {
		return NewClassifier(cfg).Classify(ctx, testWindow, copyRecs(imported), copyRecs(mirror))
	}

	BeforeEach(func() {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
		ctx = context.Background()
		cfg = &ClassifierConfig{
			Log:         log,
			Entity:      "Shift",
			Descriptor:  shiftDescriptor(),
			Keys:        []string{"key"},
			Tracked:     []string{"start", "notes"},
			Scope:       ScopeWindow,
			WindowField: "date",
		}
	})

	Context("scenarios", func() {
		It("classifies a changed tracked field as Update and the apply phase deletes then reinserts it", func() {
			prod := newMemStore(log, []string{"key"}, shift(1, "08:00", inWindow))
			res, err := classify([]stream.Record{shift(1, "09:00", inWindow)}, prod.Rows())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Batch.Len()).To(Equal(1))
			Expect(res.Batch.Records[0].GetClassification()).To(Equal(c.ClassificationUpdate))
			applied, err := newApplier(prod).Apply(ctx, res.Batch)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(Equal(ApplyResult{Deleted: 1, Inserted: 1, States: []string{c.StateDeleted, c.StateInserted}}))
			Expect(prod.Rows()).To(HaveLen(1))
			Expect(prod.Rows()[0].GetData("start")).To(Equal("09:00"))
		})

		It("classifies an import-only key as New with zero deletes and one insert", func() {
			prod := newMemStore(log, []string{"key"})
			res, err := classify([]stream.Record{shift(2, "09:00", inWindow)}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Counts[c.ClassificationNew]).To(Equal(1))
			applied, err := newApplier(prod).Apply(ctx, res.Batch)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(Equal(ApplyResult{Deleted: 0, Inserted: 1, States: []string{c.StateDeleted, c.StateInserted}}))
		})

		It("classifies a mirror-only key inside the window as Delete with zero inserts", func() {
			prod := newMemStore(log, []string{"key"}, shift(3, "09:00", inWindow))
			res, err := classify(nil, prod.Rows())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Batch.Records[0].GetClassification()).To(Equal(c.ClassificationDelete))
			applied, err := newApplier(prod).Apply(ctx, res.Batch)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(Equal(ApplyResult{Deleted: 1, Inserted: 0, States: []string{c.StateDeleted, c.StateInserted}}))
			Expect(prod.Rows()).To(BeEmpty())
		})

		It("picks the duplicate with the highest order key and only raises in strict mode", func() {
			cfg.OrderKey = "modified"
			older := shift(4, "07:00", inWindow)
			newer := shift(4, "10:00", inWindow)
			newer.SetData("modified", inWindow.Add(time.Hour))
			for _, imported := range [][]stream.Record{{older, newer}, {newer, older}} {
				res, err := classify(imported, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Duplicates).To(Equal(1))
				Expect(res.Batch.Len()).To(Equal(1))
				Expect(res.Batch.Records[0].GetData("start")).To(Equal("10:00"))
			}
			cfg.Strict = true
			_, err := classify([]stream.Record{older, newer}, nil)
			Expect(failure.Is(err, failure.ClassificationIntegrityError)).To(BeTrue())
		})

		It("keeps the last fetched duplicate when there is no order key or the order keys tie", func() {
			first := shift(5, "07:00", inWindow)
			last := shift(5, "08:00", inWindow)
			res, err := classify([]stream.Record{first, last}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Batch.Records[0].GetData("start")).To(Equal("08:00"))
			cfg.OrderKey = "modified"
			res, err = classify([]stream.Record{first, last}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Batch.Records[0].GetData("start")).To(Equal("08:00"))
		})
	})

	Context("delete rules", func() {
		It("never deletes a mirror row outside the window", func() {
			res, err := classify(nil, []stream.Record{shift(6, "09:00", outOfWindow), shift(7, "09:00", inWindow)})
			Expect(err).NotTo(HaveOccurred())
			got := byKey(res.Batch)
			Expect(got[6].GetClassification()).To(Equal(c.ClassificationUnchanged))
			Expect(got[7].GetClassification()).To(Equal(c.ClassificationDelete))
			Expect(res.Protected).To(Equal(1))
		})

		It("treats a NULL window field as outside the window", func() {
			r := shift(8, "09:00", inWindow)
			r.SetData("date", nil)
			res, err := classify(nil, []stream.Record{r})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Batch.Records[0].GetClassification()).To(Equal(c.ClassificationUnchanged))
		})

		It("retains mirror-only rows under the retain policy", func() {
			cfg.Scope = ScopeAll
			cfg.DeletePolicy = DeletePolicyRetain
			rl := &memRunLog{}
			cfg.RunLog = rl
			res, err := classify([]stream.Record{shift(1, "09:00", inWindow)}, []stream.Record{shift(9, "09:00", inWindow)})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Counts[c.ClassificationDelete]).To(Equal(0))
			Expect(res.Retained).To(Equal(1))
			Expect(rl.messages).To(ContainElement("Retained 1 records missing from the source"))
		})

		It("only deletes key-set rows whose scope key was imported", func() {
			cfg.Keys = []string{"key", "start"}
			cfg.Tracked = []string{"notes"}
			cfg.Scope = ScopeKeySet
			cfg.ScopeKey = "key"
			imported := []stream.Record{shift(10, "1", inWindow)}
			mirror := []stream.Record{shift(10, "1", inWindow), shift(10, "2", inWindow), shift(11, "1", inWindow)}
			res, err := classify(imported, mirror)
			Expect(err).NotTo(HaveOccurred())
			for _, r := range res.Batch.Records {
				switch {
				case r.GetData("key") == int64(10) && r.GetData("start") == "2":
					Expect(r.GetClassification()).To(Equal(c.ClassificationDelete))
				default:
					Expect(r.GetClassification()).To(Equal(c.ClassificationUnchanged))
				}
			}
		})
	})

	Context("integrity", func() {
		It("rejects a NULL natural key", func() {
			r := shift(1, "09:00", inWindow)
			r.SetData("key", nil)
			_, err := classify([]stream.Record{r}, nil)
			Expect(failure.Is(err, failure.ClassificationIntegrityError)).To(BeTrue())
		})

		It("rejects duplicate keys in production", func() {
			_, err := classify(nil, []stream.Record{shift(1, "a", inWindow), shift(1, "b", inWindow)})
			Expect(failure.Is(err, failure.ClassificationIntegrityError)).To(BeTrue())
		})

		It("compares every non-key field when no tracked fields are set", func() {
			cfg.Tracked = nil
			Expect(NewClassifier(cfg).TrackedFields()).To(Equal([]string{"start", "notes", "date", "modified"}))
		})
	})

	Context("write-back", func() {
		It("replaces the stage table with the classified rows and their ETLCommand", func() {
			staging := newMemStaging()
			cfg.WriteBack = true
			cfg.Staging = staging
			cfg.StageTable = rdbms.NewSchemaTable("stage", "Shift")
			_, err := classify(
				[]stream.Record{shift(1, "09:00", inWindow), shift(2, "09:00", inWindow)},
				[]stream.Record{shift(1, "09:00", inWindow), shift(3, "09:00", inWindow)})
			Expect(err).NotTo(HaveOccurred())
			Expect(staging.truncated).To(Equal([]string{"stage.Shift"}))
			Expect(staging.cols["stage.Shift"]).To(ContainElement(c.EtlCommandColumnName))
			commands := make(map[int64]interface{})
			for _, r := range staging.tables["stage.Shift"] {
				commands[r.GetData("key").(int64)] = r.GetData(c.EtlCommandColumnName)
			}
			Expect(commands).To(Equal(map[int64]interface{}{1: nil, 2: c.ClassificationNew, 3: c.ClassificationDelete}))
		})
	})

	Context("properties", func() {
		rng := rand.New(rand.NewSource(42))
		starts := []string{"07:00", "08:00", "09:00"}
		dates := []time.Time{inWindow, outOfWindow, testWindow.Start, testWindow.End}
		randomRecs := func(n int, unique bool) []stream.Record {
			recs := make([]stream.Record, 0, n)
			seen := make(map[int64]bool)
			for i := 0; i < n; i++ {
				k := int64(rng.Intn(15))
				if unique && seen[k] {
					continue
				}
				seen[k] = true
				r := shift(k, starts[rng.Intn(len(starts))], dates[rng.Intn(len(dates))])
				r.SetData("modified", inWindow.Add(time.Duration(rng.Intn(3))*time.Hour))
				recs = append(recs, r)
			}
			return recs
		}

		It("partitions the union of keys, protects rows outside the window and round-trips to all Unchanged", func() {
			cfg.OrderKey = "modified"
			for i := 0; i < 200; i++ {
				imported := randomRecs(rng.Intn(12), false)
				mirror := randomRecs(rng.Intn(12), true)
				union := make(map[int64]bool)
				for _, r := range append(copyRecs(imported), mirror...) {
					union[r.GetData("key").(int64)] = true
				}
				res, err := classify(imported, mirror)
				Expect(err).NotTo(HaveOccurred())
				got := make(map[int64]int)
				for _, r := range res.Batch.Records {
					got[r.GetData("key").(int64)]++
					Expect(r.GetClassification()).NotTo(BeEmpty())
					if r.GetClassification() == c.ClassificationDelete {
						Expect(testWindow.Contains(r.GetData("date").(time.Time))).To(BeTrue())
					}
				}
				Expect(got).To(HaveLen(len(union)))
				for _, n := range got {
					Expect(n).To(Equal(1))
				}

				prod := newMemStore(log, []string{"key"}, copyRecs(mirror)...)
				_, err = newApplier(prod).Apply(ctx, res.Batch)
				Expect(err).NotTo(HaveOccurred())
				again, err := classify(imported, prod.Rows())
				Expect(err).NotTo(HaveOccurred())
				Expect(again.Counts[c.ClassificationNew]).To(Equal(0))
				Expect(again.Counts[c.ClassificationUpdate]).To(Equal(0))
				Expect(again.Counts[c.ClassificationDelete]).To(Equal(0))

				before := prod.Rows()
				_, err = newApplier(prod).Apply(ctx, again.Batch)
				Expect(err).NotTo(HaveOccurred())
				Expect(prod.Rows()).To(Equal(before))
			}
		})
	})
})
