//Package pipeline validates, classifies, stores and fans out batches of agent readings
package pipeline

import (
	"context"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/invisy/PitDetector/internal/pkg/database"
	"github.com/invisy/PitDetector/internal/pkg/messaging/commands"
	"github.com/invisy/PitDetector/internal/pkg/readings"
)

//Publisher receives every batch of records once it has been committed
type Publisher interface {
	Publish(records []readings.StoredRecord)
}

//Pipeline wires classification, persistence and fan-out together
type Pipeline struct {
	store      database.Datastore
	publisher  Publisher
	classifier readings.Classifier
}

//New creates a pipeline that commits to store and publishes committed records to publisher
func New(store database.Datastore, publisher Publisher, classifier readings.Classifier) *Pipeline {
	return &Pipeline{store: store, publisher: publisher, classifier: classifier}
}

//Classifier returns the classifier used for raw readings
func (p *Pipeline) Classifier() readings.Classifier {
	return p.classifier
}

//IngestAgentData validates and classifies a batch of agent samples before committing it
func (p *Pipeline) IngestAgentData(ctx context.Context, batch []commands.AgentData) ([]readings.StoredRecord, error) {
	raw, err := ParseAgentData(batch)
	if err != nil {
		return nil, err
	}

	return p.IngestReadings(ctx, raw)
}

//IngestReadings classifies every reading and commits the batch
func (p *Pipeline) IngestReadings(ctx context.Context, batch []readings.RawReading) ([]readings.StoredRecord, error) {
	classified := make([]readings.ClassifiedReading, 0, len(batch))
	for _, reading := range batch {
		classified = append(classified, p.classifier.Classify(reading))
	}

	return p.IngestClassified(ctx, classified)
}

//IngestClassified commits the batch and, only if the commit succeeded, publishes the
//stored records in the order they were committed
func (p *Pipeline) IngestClassified(ctx context.Context, batch []readings.ClassifiedReading) ([]readings.StoredRecord, error) {
	if len(batch) == 0 {
		return []readings.StoredRecord{}, nil
	}

	records, err := p.store.CreateProcessedAgentData(ctx, batch)
	if err != nil {
		return nil, err
	}

	p.publisher.Publish(records)

	return records, nil
}

//Run consumes batches with the given number of workers until the channel is closed or the
//context is cancelled. Failed batches are logged and dropped.
func (p *Pipeline) Run(ctx context.Context, batches <-chan []commands.AgentData, workers int) error {
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case batch, ok := <-batches:
					if !ok {
						return nil
					}

					records, err := p.IngestAgentData(ctx, batch)
					if err != nil {
						log.Errorf("Failed to ingest batch of %d samples: %s", len(batch), err.Error())
						continue
					}

					log.Debugf("Ingested batch of %d samples.", len(records))
				}
			}
		})
	}

	return g.Wait()
}
