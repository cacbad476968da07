package reconcile

import (
	"context"
	"fmt"

	"github.com/example/bulk-record-processor/internal/record"
)

// groupSpec parameterises reconcileGroup for one optional group.
type groupSpec struct {
	group record.Group
	// collection is the sub-record collection under users/{id}.
	collection string
	// key is the field holding the resolved entity id.
	key string
	// resolve maps the group's names to the referenced entity id.
	resolve func(ctx context.Context) (string, error)
	// body lists the non-key fields written to the sub-record.
	body func() map[string]string
}

// reconcileGroup upserts one sub-record keyed by (user, resolved entity).
func (r *Reconciler) reconcileGroup(ctx context.Context, userID string, spec groupSpec) (Action, error) {
	fields := spec.group.Fields()
	if fields.Empty() {
		return ActionSkipped, nil
	}
	if err := record.Validate(spec.group); err != nil {
		return "", err
	}

	entityID, err := spec.resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", spec.group.GroupLabel(), err)
	}

	resource := userResource(userID, spec.collection)
	existing, err := r.records.LookupSingle(ctx, resource, map[string]string{spec.key: entityID}, true)
	if err != nil {
		return "", fmt.Errorf("%s: %w", spec.group.GroupLabel(), err)
	}

	body := spec.body()
	if existing != nil {
		if _, err := r.records.Update(ctx, resource, entityID, body); err != nil {
			return "", fmt.Errorf("%s: %w", spec.group.GroupLabel(), err)
		}
		return ActionUpdated, nil
	}

	body[spec.key] = entityID
	if _, err := r.records.Create(ctx, resource, body); err != nil {
		return "", fmt.Errorf("%s: %w", spec.group.GroupLabel(), err)
	}
	return ActionCreated, nil
}

// groups returns the row's optional groups in reconciliation order.
func (r *Reconciler) groups(row *record.Row) []groupSpec {
	specs := []groupSpec{r.skillSpec(row.Skill), r.achievementSpec(row.Achievement)}
	for _, attr := range row.Attributes {
		specs = append(specs, r.attributeSpec(attr))
	}
	return specs
}

func (r *Reconciler) skillSpec(s record.Skill) groupSpec {
	return groupSpec{
		group:      s,
		collection: "skills",
		key:        "skillId",
		resolve: func(ctx context.Context) (string, error) {
			provider, err := r.records.LookupSingle(ctx, "skillsProviders", map[string]string{"name": s.ProviderName}, false)
			if err != nil {
				return "", err
			}
			skill, err := r.records.LookupSingle(ctx, "skills", map[string]string{
				"skillProviderId": provider.ID(),
				"name":            s.Name,
			}, false)
			if err != nil {
				return "", err
			}
			return skill.ID(), nil
		},
		body: func() map[string]string {
			return compact(map[string]string{
				"certifierId":   s.CertifierID,
				"certifiedDate": s.CertifiedDate,
				"metricValue":   s.MetricValue,
			})
		},
	}
}

func (r *Reconciler) achievementSpec(a record.Achievement) groupSpec {
	return groupSpec{
		group:      a,
		collection: "achievements",
		key:        "achievementsProviderId",
		resolve: func(ctx context.Context) (string, error) {
			provider, err := r.records.LookupSingle(ctx, "achievementsProviders", map[string]string{"name": a.ProviderName}, false)
			if err != nil {
				return "", err
			}
			return provider.ID(), nil
		},
		body: func() map[string]string {
			return compact(map[string]string{
				"name":          a.Name,
				"uri":           a.URI,
				"certifierId":   a.CertifierID,
				"certifiedDate": a.CertifiedDate,
			})
		},
	}
}

func (r *Reconciler) attributeSpec(a record.Attribute) groupSpec {
	return groupSpec{
		group:      a,
		collection: "attributes",
		key:        "attributeId",
		resolve: func(ctx context.Context) (string, error) {
			group, err := r.records.LookupSingle(ctx, "attributeGroups", map[string]string{"name": a.GroupName}, false)
			if err != nil {
				return "", err
			}
			attr, err := r.records.LookupSingle(ctx, "attributes", map[string]string{
				"attributeGroupId": group.ID(),
				"name":             a.Name,
			}, false)
			if err != nil {
				return "", err
			}
			return attr.ID(), nil
		},
		body: func() map[string]string {
			return map[string]string{"value": a.Value}
		},
	}
}

// compact drops empty optional values so updates never blank a field.
func compact(m map[string]string) map[string]string {
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	return m
}
